package main

import (
	"fmt"

	"github.com/keeeei13c/speedy-english-training/internal/llm"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
)

const probePrompt = `Reply with the JSON object {"status": "ok"} and nothing else.`

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Send one prompt upstream to check the credential and endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}

			model, err := llm.NewUpstream(cfg.Upstream.BaseURL, cfg.Upstream.APIKey)
			if err != nil {
				return fmt.Errorf("failed to initialize upstream client: %w", err)
			}

			prompt, _ := cmd.Flags().GetString("prompt")
			completion, err := llms.GenerateFromSinglePrompt(cmd.Context(), model, prompt,
				llms.WithModel(llm.Model),
				llms.WithTemperature(llm.Temperature),
			)
			if err != nil {
				return fmt.Errorf("failed to generate completion: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), completion)
			return nil
		},
	}

	cmd.Flags().String("prompt", probePrompt, "Prompt to send")
	return cmd
}
