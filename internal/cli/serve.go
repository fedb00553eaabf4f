package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/probelab/scout/internal/tracing"
	"github.com/probelab/scout/pkg/agent"
	"github.com/probelab/scout/pkg/gateway"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long:  "Starts the agent gateway: chat API, session management, metrics, and the websocket progress stream.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// The progress sink is bound after the gateway exists; until then events
	// are dropped.
	var deliver agent.Sink
	rt, err := buildRuntime(func(event agent.ToolCallEvent) {
		if deliver != nil {
			deliver(event)
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

	srv, err := gateway.NewServer(gateway.ServerConfig{
		Host:         rt.cfg.Server.Host,
		Port:         rt.cfg.Server.Port,
		Runner:       rt.runner,
		Store:        rt.store,
		Logger:       rt.log.GetZerolog(),
		SharedSecret: rt.cfg.Server.SharedSecret,
	})
	if err != nil {
		return err
	}
	deliver = srv.Sink()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		zl := rt.log.GetZerolog()
		zl.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}
