package cli

import (
	"fmt"
	"io"

	"github.com/spacemonkeygo/errors"
	"github.com/urfave/cli"

	"go.polydawn.net/cohort/def"
)

// Set at link time.
var (
	GITCOMMIT = "unknown"
	BUILDDATE = "unknown"
)

func Main(args []string, stdout, stderr io.Writer) {
	App := cli.NewApp()

	App.Name = "cohort"
	App.Usage = "Farm work out to whoever shows up."
	App.Version = "v0.1+dev"

	App.Writer = stdout
	App.ErrWriter = stderr

	App.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "serialize, s",
			Usage: "log as one JSON object per line",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "log debug detail",
		},
	}

	App.Commands = []cli.Command{
		ServeCommandPattern(stderr),
		WorkCommandPattern(stderr),
		ProjectsCommandPattern(stdout),
		CreateCommandPattern(stdout),
	}

	// Slight touch to the phrasing on subcommands not found.
	App.CommandNotFound = func(ctx *cli.Context, command string) {
		panic(Error.NewWith(
			fmt.Sprintf("Incorrect usage: '%s %v' is not a cohort subcommand\n", ctx.App.Name, command),
			SetExitCode(EXIT_BADARGS),
		))
	}

	// Version goes to stdout.
	// Global var.  Womp womp.
	cli.VersionPrinter = func(ctx *cli.Context) {
		fmt.Fprintf(ctx.App.Writer, "%v %v\n", ctx.App.Name, ctx.App.Version)
		fmt.Fprintf(ctx.App.Writer, "git commit %v\n", GITCOMMIT)
		fmt.Fprintf(ctx.App.Writer, "build date %v\n", BUILDDATE)
	}

	// Invoking version as a subcommand should also fly.
	App.Commands = append(App.Commands,
		cli.Command{
			Name:  "version",
			Usage: "Shows the version of cohort",
			Action: func(ctx *cli.Context) error {
				cli.ShowVersion(ctx)
				return nil
			},
		},
	)

	if err := App.Run(args); err != nil {
		panic(userFacing(err))
	}
}

/*
	Map what a command returned onto a CLIError where the user can do
	something about it.  Anything else is passed through untouched, and
	becomes a bug report.
*/
func userFacing(err error) error {
	class := errors.GetClass(err)
	switch {
	case class.Is(Error):
		return err
	case class.Is(def.ValidationError), class.Is(def.TransformError):
		return Error.NewWith(errors.GetMessage(err), SetExitCode(EXIT_USER))
	case class.Is(def.StoreError), class.Is(def.UnknownProjectError):
		return Error.NewWith(errors.GetMessage(err), SetExitCode(EXIT_UNAVAILABLE))
	case class.Is(errors.SystemError):
		// Flag parse failures from the cli library land here.
		return Error.NewWith(fmt.Sprintf("Incorrect usage: %s", err), SetExitCode(EXIT_BADARGS))
	}
	return err
}
