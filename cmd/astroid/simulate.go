package main

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/w1xm/astroid_interface/astroid/simulator"
)

var simulateListen string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated controller that serve can reach over TCP",
	Long: `Run a simulated Astroid controller. Each TCP connection gets its own
simulator; point device.address (or ASTROID_ADDRESS) at the listen address.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVarP(&simulateListen, "listen", "l", "localhost:7000", "address to listen on")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", simulateListen)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	log.Printf("simulator listening on %s", l.Addr())
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		log.Printf("simulator: connection from %s", conn.RemoteAddr())
		go func() {
			err := simulator.Attach(conn).Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("simulator: %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}
