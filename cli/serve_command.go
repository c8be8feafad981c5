package cli

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/urfave/cli"

	"go.polydawn.net/cohort/config"
	"go.polydawn.net/cohort/coordinator"
	"go.polydawn.net/cohort/snapshot"
	"go.polydawn.net/cohort/snapshot/file"
	"go.polydawn.net/cohort/snapshot/mem"
	"go.polydawn.net/cohort/transport"
)

func ServeCommandPattern(stderr io.Writer) cli.Command {
	return cli.Command{
		Name:  "serve",
		Usage: "Run a coordinator",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "config, c",
				Usage: "YAML file of coordinator settings",
			},
			cli.StringFlag{
				Name:  "listen, l",
				Usage: "address to serve HTTP and websockets on (overrides config)",
			},
			cli.StringFlag{
				Name:  "store",
				Usage: "file to persist project snapshots to (overrides config)",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadCoordinator(ctx.String("config"))
			if err != nil {
				return err
			}
			if v := ctx.String("listen"); v != "" {
				cfg.Listen = v
			}
			if v := ctx.String("store"); v != "" {
				cfg.StorePath = v
			}
			log := newLogger(stderr, ctx.GlobalBool("serialize"), ctx.GlobalBool("verbose"))

			sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(sigCtx, cfg, log)
		},
	}
}

/*
	Run a coordinator until the context is done: load the snapshot,
	serve the HTTP API and the websocket hub, and persist on the way out.
*/
func Serve(ctx context.Context, cfg config.Coordinator, log log15.Logger) error {
	var store snapshot.Store
	if cfg.StorePath != "" {
		store = file.New(cfg.StorePath)
	} else {
		log.Warn("no store configured; projects will not survive a restart")
		store = mem.New()
	}

	hub := transport.NewHub(nil, log.New("module", "hub"))
	ctrl := coordinator.New(cfg.Controller(), store, hub, log.New("module", "coordinator"))
	hub.Handler = ctrl
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: transport.NewRouter(ctrl, hub, log.New("module", "http")),
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("serving", "listen", cfg.Listen)
		serveErr <- srv.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-serveErr:
		err = Error.NewWith("could not serve: "+err.Error(), SetExitCode(EXIT_UNAVAILABLE))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	hub.Close()
	ctrl.Close()
	return err
}
