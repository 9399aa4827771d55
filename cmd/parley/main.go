package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "parley is a session-based chat client for LLM backends",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger()
	},
}

func initLogger() error {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return nil
}

func initViper() error {
	viper.SetConfigName("parley")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.config/parley")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("PARLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("provider", "openai", "backend kind (openai, claude, gemini, ollama)")
	rootCmd.PersistentFlags().String("host", "", "override the backend host")
	rootCmd.PersistentFlags().String("model", "", "override the chat model")

	for _, flag := range []string{"log-level", "provider", "host", "model"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			cobra.CheckErr(err)
		}
	}

	if err := initViper(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing config: %s\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newModelsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
