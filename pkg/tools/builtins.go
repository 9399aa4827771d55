package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

// BuiltinRegistry returns a registry populated with the built-in tools.
func BuiltinRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(CurrentTimeTool())
	_ = r.Register(FetchURLTool())
	return r
}

type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name such as Europe/Berlin. Defaults to UTC."`
}

func CurrentTimeTool() Definition {
	return Definition{
		Name:        "current_time",
		Description: "Get the current date and time, optionally in a given timezone.",
		Parameters:  SchemaFor(&currentTimeArgs{}),
		Run: func(_ context.Context, arguments json.RawMessage) (Result, error) {
			var args currentTimeArgs
			if len(arguments) > 0 {
				if err := json.Unmarshal(arguments, &args); err != nil {
					return Result{}, errors.Wrap(err, "invalid arguments")
				}
			}

			loc := time.UTC
			if args.Timezone != "" {
				var err error
				loc, err = time.LoadLocation(args.Timezone)
				if err != nil {
					return Result{}, errors.Wrapf(err, "unknown timezone %q", args.Timezone)
				}
			}

			return Result{
				Content: time.Now().In(loc).Format(time.RFC1123),
			}, nil
		},
	}
}

type fetchURLArgs struct {
	URL string `json:"url" jsonschema:"required,description=The URL of the page to fetch."`
}

func FetchURLTool() Definition {
	return Definition{
		Name:        "fetch_url",
		Description: "Fetch a web page and return its title and visible text.",
		Parameters:  SchemaFor(&fetchURLArgs{}),
		Run: func(ctx context.Context, arguments json.RawMessage) (Result, error) {
			var args fetchURLArgs
			if err := json.Unmarshal(arguments, &args); err != nil {
				return Result{}, errors.Wrap(err, "invalid arguments")
			}
			if args.URL == "" {
				return Result{}, errors.New("url is required")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
			if err != nil {
				return Result{}, errors.Wrap(err, "could not build request")
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return Result{}, errors.Wrap(err, "could not fetch page")
			}
			defer func() {
				_ = resp.Body.Close()
			}()

			if resp.StatusCode != http.StatusOK {
				return Result{}, errors.Errorf("unexpected status %d", resp.StatusCode)
			}

			doc, err := goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				return Result{}, errors.Wrap(err, "could not parse page")
			}

			doc.Find("script, style, noscript").Remove()

			title := strings.TrimSpace(doc.Find("title").First().Text())
			text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")

			var sb strings.Builder
			if title != "" {
				sb.WriteString(title)
				sb.WriteString("\n\n")
			}
			sb.WriteString(text)

			return Result{Content: sb.String()}, nil
		},
	}
}
