package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"github.com/go-go-golems/parley/pkg/chat"
)

// RunFunc executes a tool with the raw JSON arguments the model produced.
type RunFunc func(ctx context.Context, arguments json.RawMessage) (Result, error)

// Result is what a tool run produced. Content goes back to the model, Data
// carries binary artifacts (images) that bypass the model.
type Result struct {
	Content string
	Data    []chat.TypedData
}

// Definition describes one callable tool.
type Definition struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Run         RunFunc
}

// SchemaFor reflects a JSON schema from an arguments struct.
func SchemaFor(v interface{}) *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return reflector.Reflect(v)
}

// Spec renders the definition into the transport-neutral form adapters
// consume.
func (d Definition) Spec() (chat.ToolSpec, error) {
	params := json.RawMessage(`{"type":"object","properties":{}}`)
	if d.Parameters != nil {
		b, err := json.Marshal(d.Parameters)
		if err != nil {
			return chat.ToolSpec{}, errors.Wrapf(err, "could not marshal schema for tool %s", d.Name)
		}
		params = b
	}

	return chat.ToolSpec{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  params,
	}, nil
}
