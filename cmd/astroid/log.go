package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/w1xm/astroid_interface/internal/telemetry"
)

var statusURL string

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Record status updates from a running server to InfluxDB",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		i := cfg.Influx
		return telemetry.Log(ctx, statusURL, i.Server, i.Token, i.Org, i.Bucket)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&statusURL, "url", "u", "ws://localhost:8502/api/ws", "status websocket of a running server")
	rootCmd.AddCommand(logCmd)
}
