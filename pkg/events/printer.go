package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"gopkg.in/yaml.v3"
)

// PrinterFunc returns a watermill handler that renders generation events to w
// as they arrive. Deltas are written as they come in, tool activity is dumped
// as YAML.
func PrinterFunc(name string, w io.Writer) func(msg *message.Message) error {
	isFirst := true

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJSON(msg.Payload)
		if err != nil {
			return err
		}

		switch p := e.(type) {
		case *EventPartialCompletion:
			if isFirst && name != "" {
				isFirst = false
				_, err = fmt.Fprintf(w, "\n%s: \n", name)
				if err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(w, "%s", p.Delta)
			if err != nil {
				return err
			}

		case *EventFinal:
			if !strings.HasSuffix(p.Text, "\n") {
				_, err = fmt.Fprintf(w, "\n")
				if err != nil {
					return err
				}
			}

		case *EventToolCall:
			v, err := yaml.Marshal(p.ToolCall)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "%s\n", v)
			if err != nil {
				return err
			}

		case *EventToolCallExecutionResult:
			v, err := yaml.Marshal(p.ToolResult)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "%s\n", v)
			if err != nil {
				return err
			}

		case *EventError:
			_, err = fmt.Fprintf(w, "\nerror: %s\n", p.ErrorString)
			if err != nil {
				return err
			}

		case *EventInterrupt:
			_, err = fmt.Fprintf(w, "\n[interrupted]\n")
			if err != nil {
				return err
			}

		case *EventStart, *EventToolCallExecute:
		}

		return nil
	}
}
