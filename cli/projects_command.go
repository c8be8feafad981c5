package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli"

	"go.polydawn.net/cohort/config"
	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/transport"
)

var apiFlag = cli.StringFlag{
	Name:   "api",
	Value:  "http://localhost:8000",
	Usage:  "HTTP address of the coordinator",
	EnvVar: "COHORT_API",
}

func ProjectsCommandPattern(stdout io.Writer) cli.Command {
	return cli.Command{
		Name:  "projects",
		Usage: "List the coordinator's projects",
		Flags: []cli.Flag{
			apiFlag,
			cli.BoolFlag{
				Name:  "json",
				Usage: "print the raw status as JSON",
			},
		},
		Action: func(ctx *cli.Context) error {
			var projects []def.ProjectStatus
			raw, err := call(http.MethodGet, ctx.String("api")+"/projects", "", nil, &projects)
			if err != nil {
				return err
			}
			if ctx.Bool("json") {
				stdout.Write(raw)
				stdout.Write([]byte{'\n'})
				return nil
			}
			printProjects(stdout, projects)
			return nil
		},
	}
}

func CreateCommandPattern(stdout io.Writer) cli.Command {
	return cli.Command{
		Name:      "create",
		Usage:     "Create a project from a YAML or JSON file of project options",
		ArgsUsage: "<options file>",
		Flags:     []cli.Flag{apiFlag},
		Action: func(ctx *cli.Context) error {
			if len(ctx.Args()) != 1 {
				return Error.NewWith(
					"cohort create requires exactly one options file",
					SetExitCode(EXIT_BADARGS),
				)
			}
			opts, err := config.ReadProjectOptions(ctx.Args().First())
			if err != nil {
				return err
			}
			body, err := transport.Encode(opts)
			if err != nil {
				return err
			}
			var created struct {
				ProjectID def.ProjectID `json:"projectId"`
			}
			if _, err := call(http.MethodPost, ctx.String("api")+"/projects", "application/json", body, &created); err != nil {
				return err
			}
			fmt.Fprintln(stdout, created.ProjectID)
			return nil
		},
	}
}

// Make one API call, decoding a successful reply into `into` and a failed one into a CLIError.
func call(method, url, contentType string, body []byte, into interface{}) ([]byte, error) {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return nil, Error.NewWith(err.Error(), SetExitCode(EXIT_BADARGS))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, Error.NewWith("could not reach the coordinator: "+err.Error(), SetExitCode(EXIT_UNAVAILABLE))
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Error.NewWith("could not read the coordinator's reply: "+err.Error(), SetExitCode(EXIT_UNAVAILABLE))
	}
	if resp.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
		}
		if transport.Decode(raw, &failure) != nil || failure.Error == "" {
			failure.Error = resp.Status
		}
		code := EXIT_UNAVAILABLE
		if resp.StatusCode < 500 {
			code = EXIT_USER
		}
		return raw, Error.NewWith("the coordinator refused: "+failure.Error, SetExitCode(code))
	}
	if into != nil {
		if err := transport.Decode(raw, into); err != nil {
			return raw, err
		}
	}
	return raw, nil
}

func printProjects(w io.Writer, projects []def.ProjectStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tTITLE\tDONE\tWORKERS\tSTATE")
	for _, p := range projects {
		state := "running"
		switch {
		case p.Complete:
			state = fmt.Sprintf("complete: %v", p.FinalResult)
		case p.Failure != "":
			state = "failed: " + p.Failure
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			p.ProjectID, p.ProjectType, strings.TrimSpace(p.Title),
			p.CompletedJobs, p.JobsLength, len(p.Workers), state,
		)
	}
	tw.Flush()
}
