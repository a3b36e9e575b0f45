package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/keeeei13c/speedy-english-training/internal/client"
	"github.com/keeeei13c/speedy-english-training/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Practice in the terminal against a running tutoring API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			serverURL := cfg.Client.ServerURL
			if s, _ := cmd.Flags().GetString("server"); s != "" {
				serverURL = s
			}

			logger := zap.NewNop()
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				if logger, err = newLogger(cfg); err != nil {
					return err
				}
				defer logger.Sync()
			}

			c := client.New(serverURL, client.WithLogger(logger))
			return runChat(cmd, c)
		},
	}

	cmd.Flags().String("server", "", "Tutoring API base URL (overrides client.server_url)")
	cmd.Flags().BoolP("verbose", "v", false, "Log requests and retries")
	return cmd
}

func runChat(cmd *cobra.Command, c *client.Client) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())

	fmt.Fprintln(out, "Type /start to get a question, /clear to clear the screen, /quit to leave.")

	shown := 0
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			c.ClearMessages()
			shown = 0
			fmt.Fprintln(out, "(cleared)")
			continue
		case "/start":
			c.StartLearning(ctx)
		default:
			c.SendMessage(ctx, line)
		}

		state := c.State()
		for _, m := range state.Messages[shown:] {
			if m.Role == models.RoleAssistant {
				fmt.Fprintf(out, "tutor: %s\n", m.Content)
			}
		}
		shown = len(state.Messages)

		if state.Error != "" {
			fmt.Fprintf(out, "error: %s\n", state.Error)
		}
	}
	return scanner.Err()
}
