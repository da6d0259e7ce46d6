package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/tokwatch/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for triggering jobs, browsing collected videos and querying sentiment analytics.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Port
	if servePort > 0 {
		port = servePort
	}

	var dispatcher server.AnalysisService
	if a.dispatcher != nil {
		dispatcher = a.dispatcher
	}

	srv := server.New(server.Config{
		Port:              port,
		AnalysisBatchSize: a.cfg.AnalysisBatchSize,
	}, a.db, a.runner, dispatcher)

	return srv.Start()
}
