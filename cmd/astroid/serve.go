package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/w1xm/astroid_interface/astroid"
	"github.com/w1xm/astroid_interface/internal/server"
	"github.com/w1xm/astroid_interface/mount"
	"github.com/w1xm/astroid_interface/powerbox"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mount controller and its HTTP/websocket API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func connectDevice(ctx context.Context, cb astroid.StatusCallback) (*astroid.Device, error) {
	if cfg.Device.Address != "" {
		return astroid.ConnectTCP(ctx, cfg.Device.Address, cb)
	}
	return astroid.Connect(ctx, cfg.Device.Port, cfg.Device.Baud, cb)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer()
	m := mount.New(cfg.Mount.Config(), cfg.Site.Site(), srv.MountCallback)

	dev, err := connectDevice(ctx, m.HandleStatus)
	if err != nil {
		return err
	}
	dev.OnConnect(m.Reconnected)
	m.Attach(dev)

	var switches server.Switches
	if cfg.Powerbox.Enabled() {
		pb, err := powerbox.Connect(ctx, cfg.Powerbox.Config(), srv.PowerboxCallback)
		if err != nil {
			return err
		}
		switches = pb
	}
	srv.Attach(m, switches)

	httpSrv := &http.Server{
		Handler:     srv.Router(cfg.Server.StaticDir),
		Addr:        cfg.Server.Listen,
		ReadTimeout: 15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Run(ctx)
	})
	g.Go(func() error {
		log.Printf("listening on %s", cfg.Server.Listen)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
