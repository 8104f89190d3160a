package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"twinlab/internal/llm"
	"twinlab/internal/server"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long:  "Serves run submission, progress, results, and Prometheus metrics over HTTP until interrupted.",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "listen port (overrides config)")
	cmd.Flags().Bool("mock", false, "use a canned mock model instead of the configured provider")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	mock, _ := cmd.Flags().GetBool("mock")
	a, err := loadApp(cmd, !mock)
	if err != nil {
		return err
	}
	if mock {
		a.client = llm.NewMockClient("Score: 4\nReason: canned reply from the mock model.")
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		a.cfg.Server.Port = port
	}

	fmt.Printf("%s http://%s:%d\n", bold("Serving on"), a.cfg.Server.Host, a.cfg.Server.Port)
	return server.New(a.cfg, a.personas, a.client).Start(cmd.Context())
}
