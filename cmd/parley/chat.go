package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/controller"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/tools"
)

func providerFromConfig() (*chat.Provider, error) {
	kind := chat.ProviderKind(viper.GetString("provider"))
	p := chat.NewProvider(kind)
	if p.Host == "" {
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}

	p.APIKey = viper.GetString(string(kind) + "-api-key")
	if host := viper.GetString("host"); host != "" {
		p.Host = host
	}
	if model := viper.GetString("model"); model != "" {
		p.ChatModel = chat.Model{Code: model, Name: model, Kind: chat.ModelKindChat}
		p.TitleModel = p.ChatModel
		p.QuickModel = p.ChatModel
	}
	return p, nil
}

func newChatCommand() *cobra.Command {
	var systemPrompt string
	var noStream bool
	var noTools bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := providerFromConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := tools.BuiltinRegistry()

			configOptions := []chat.ConfigOption{
				chat.WithStream(!noStream),
			}
			if systemPrompt != "" {
				configOptions = append(configOptions, chat.WithSystemPrompt(systemPrompt))
			}
			if !noTools {
				specs, err := registry.Specs(nil)
				if err != nil {
					return err
				}
				configOptions = append(configOptions, chat.WithTools(specs))
			}
			config := chat.NewSessionConfig(provider, configOptions...)

			router, err := events.NewEventRouter()
			if err != nil {
				return err
			}
			defer func() {
				_ = router.Close()
			}()
			router.AddHandler("printer", "chat", events.PrinterFunc("", os.Stdout))

			sink := events.NewWatermillSink(router.Publisher, "chat")
			ctrl := controller.New(
				controller.WithSinks(sink),
				controller.WithToolRegistry(registry),
			)

			session, err := ctrl.NewSession(ctx, config)
			if err != nil {
				return err
			}

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return router.Run(egCtx)
			})
			eg.Go(func() error {
				defer stop()
				return repl(egCtx, ctrl, session)
			})

			return eg.Wait()
		},
	}

	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt for the session")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "use one-shot completions instead of streaming")
	cmd.Flags().BoolVar(&noTools, "no-tools", false, "disable the built-in tools")

	return cmd
}

func repl(ctx context.Context, ctrl *controller.Controller, session *chat.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println("Type a message, /stop to interrupt, /quit to exit.")
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			ctrl.Stop(session)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			ctrl.Stop(session)
			ctrl.Wait(session)
			return nil
		case line == "/stop":
			ctrl.Stop(session)
			ctrl.Wait(session)
			continue
		case line == "/tokens":
			fmt.Printf("context tokens: %d\n", session.TokenCount)
			continue
		}

		if err := ctrl.Send(ctx, session, controller.Input{Text: line}); err != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
			continue
		}
		ctrl.Wait(session)

		if session.ErrorMessage != "" {
			fmt.Fprintf(os.Stderr, "error: %s\n", session.ErrorMessage)
		}
	}
}
