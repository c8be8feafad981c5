package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/inconshreveable/log15"
	"github.com/urfave/cli"

	"go.polydawn.net/cohort/config"
	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/dispatcher"
	"go.polydawn.net/cohort/transform"
	"go.polydawn.net/cohort/transport"
)

func WorkCommandPattern(stderr io.Writer) cli.Command {
	return cli.Command{
		Name:      "work",
		Usage:     "Join a project and work on it until it's complete",
		ArgsUsage: "<projectId>",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "config, c",
				Usage: "YAML file of participant settings",
			},
			cli.StringFlag{
				Name:  "server",
				Usage: "websocket address of the coordinator (overrides config)",
			},
			cli.IntFlag{
				Name:  "slots, j",
				Usage: "jobs to run at once (overrides config)",
			},
		},
		Action: func(ctx *cli.Context) error {
			if len(ctx.Args()) != 1 {
				return Error.NewWith(
					"cohort work requires exactly one project id",
					SetExitCode(EXIT_BADARGS),
				)
			}
			project := def.ProjectID(ctx.Args().First())
			cfg, err := config.LoadParticipant(ctx.String("config"))
			if err != nil {
				return err
			}
			if v := ctx.String("server"); v != "" {
				cfg.Server = v
			}
			if v := ctx.Int("slots"); v > 0 {
				cfg.Slots = v
			}
			log := newLogger(stderr, ctx.GlobalBool("serialize"), ctx.GlobalBool("verbose"))

			sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Work(sigCtx, cfg, project, log)
		},
	}
}

// Work on one project until its final result arrives or the context is done.
func Work(ctx context.Context, cfg config.Participant, project def.ProjectID, log log15.Logger) error {
	conn, err := transport.Dial(ctx, cfg.Server)
	if err != nil {
		return Error.NewWith("could not reach the coordinator: "+err.Error(), SetExitCode(EXIT_UNAVAILABLE))
	}
	defer conn.Close()
	d := dispatcher.New(cfg.Dispatcher(), transform.Builtin(), conn, log.New("project", project))
	d.Start()
	defer d.Close()
	log.Info("joining", "server", cfg.Server, "project", project, "slots", d.Slots())
	return d.Run(ctx, conn, project)
}
