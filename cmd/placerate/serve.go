package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nspcc-dev/place-ratings/api"
	"github.com/nspcc-dev/place-ratings/app"
	"github.com/nspcc-dev/place-ratings/submit"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run HTTP gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "ready-url", Usage: "URL notified with POST request once the gateway is serving"},
		},
		Action: func(c *cli.Context) error {
			d, err := setup(c)
			if err != nil {
				return err
			}
			defer d.close()
			defer func() { _ = d.log.Sync() }()

			if c.IsSet("listen") {
				d.cfg.HTTP.Listen = c.String("listen")
			}
			if c.IsSet("ready-url") {
				d.cfg.HTTP.ReadyURL = c.String("ready-url")
			}

			coord, err := d.gatewayCoordinator()
			if err != nil {
				return err
			}

			svc, err := d.service(coord)
			if err != nil {
				return err
			}

			return d.serve(c.Context, svc)
		},
	}
}

// gatewayCoordinator returns coordinator accepting externally signed
// ratings. Nil is returned in direct mode since the gateway holds no
// identities.
func (d *deps) gatewayCoordinator() (*submit.Coordinator, error) {
	if d.cfg.Mode() != submit.ModeRelayed {
		d.log.Warn("rating submission is disabled in direct mode")
		return nil, nil
	}

	s, err := d.walletSigner(nil, false)
	if err != nil {
		return nil, err
	}

	return d.coordinator(s)
}

func (d *deps) serve(ctx context.Context, svc *app.Service) error {
	if !d.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Handler:           api.NewRouter(d.log, svc),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", d.cfg.HTTP.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		d.log.Info("HTTP gateway listening", zap.Stringer("address", ln.Addr()))
		errCh <- srv.Serve(ln)
	}()

	app.Start(ctx, d.log, d.readyHost())

	select {
	case <-ctx.Done():
		d.log.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// readyHost notifies configured URL about readiness, nil if there is no URL.
func (d *deps) readyHost() app.Host {
	url := d.cfg.HTTP.ReadyURL
	if url == "" {
		return nil
	}

	return app.HostFunc(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.cfg.RPC.RequestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
		if err != nil {
			return err
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}
		return nil
	})
}
