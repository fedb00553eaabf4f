package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/probelab/scout/internal/tracing"
	"github.com/probelab/scout/pkg/agent"
	"github.com/spf13/cobra"
)

var askSessionID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Run a single research turn from the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSessionID, "session", "", "continue an existing session")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	rt, err := buildRuntime(func(event agent.ToolCallEvent) {
		if event.Phase == agent.PhaseStarted {
			fmt.Printf("  [%d] %s ...\n", event.Iteration, event.Call.Name)
		} else if event.Call.Error != "" {
			fmt.Printf("  [%d] %s failed: %s\n", event.Iteration, event.Call.Name, event.Call.Error)
		}
	})
	if err != nil {
		return err
	}
	defer rt.close()

	if err := tracing.InitOpenTelemetry("scout"); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracing.ShutdownOpenTelemetry(ctx)
	}()

	sessionID := askSessionID
	if sessionID == "" {
		sessionID = rt.store.CreateSession()
	}

	result, err := rt.runner.Run(context.Background(), question, sessionID)
	if err != nil {
		return err
	}

	rt.store.AddMessage(sessionID, "user", question)
	rt.store.AddMessage(sessionID, "assistant", result.Content)

	fmt.Println()
	fmt.Println(result.Content)
	fmt.Println()
	fmt.Printf("(%s; session %s; trace %s)\n", result.Reasoning, sessionID, result.TraceID)
	return nil
}
