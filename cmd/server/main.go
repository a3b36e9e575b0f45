package main

import (
	"fmt"
	"os"

	"github.com/keeeei13c/speedy-english-training/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tutor",
		Short: "English translation tutor backed by a chat-completions model",
		Long: `tutor serves a small JSON API that relays a learner's answers to a
language model and returns structured feedback, plus a terminal client for it.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newProbeCmd(),
	)
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
