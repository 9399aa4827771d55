package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/providers/factory"
)

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the configured backend offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := providerFromConfig()
			if err != nil {
				return err
			}

			service, err := factory.ForProvider(provider)
			if err != nil {
				return err
			}

			provider.AddModels(providers.ListModels(cmd.Context(), service, provider))

			for _, m := range provider.ChatModels() {
				fmt.Printf("%s\t%s\n", m.Code, m.Name)
			}
			return nil
		},
	}
}
