package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smpn3pacet/jadwal/internal/assistant"
)

var askCmd = &cobra.Command{
	Use:     "ask QUESTION...",
	GroupID: "advanced",
	Short:   "Ask a question about the teacher and schedule data",
	Long: `Ask the assistant a question. The teacher workload, absences and
calendar are sent along as context. Needs ANTHROPIC_API_KEY.

  jadwal ask "Siapa guru dengan jam mengajar terbanyak?"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		question := strings.Join(args, " ")
		run(func(ctx context.Context, a *app) error {
			asst, err := assistant.New(assistant.Config{
				Model:  a.cfg.AssistantModel,
				Logger: newLogger("assistant"),
			})
			if errors.Is(err, assistant.ErrNoAPIKey) {
				return fmt.Errorf("%w; export it to use jadwal ask", err)
			}
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			answer, err := asst.Ask(ctx, a.container.Snapshot(), question)
			if err != nil {
				return err
			}
			fmt.Println(answer)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
