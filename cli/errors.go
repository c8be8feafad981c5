package cli

import (
	"github.com/spacemonkeygo/errors"
)

type ExitCode byte

const (
	EXIT_BADARGS      = ExitCode(1)
	EXIT_UNKNOWNPANIC = ExitCode(2) // same code as golang uses when the process dies naturally on an unhandled panic.
	EXIT_USER         = ExitCode(3) // grab bag for general user input errors (bad config, bad project options).
	EXIT_UNAVAILABLE  = ExitCode(4) // the coordinator couldn't be reached, or its store couldn't be loaded.
)

var ExitCodeKey = errors.GenSym()

/*
	CLI errors are the last line: they should be formatted to be user-facing.
	The main method will convert a CLIError into a short and well-formatted
	message, and will *not* include stack traces unless the user is running
	with debug mode enabled.

	Anything that's a cohort bug or unknown territory should *not* be
	mapped into a CLIError.
*/
var Error *errors.ErrorClass = errors.NewClass("CLIError")

/*
	Use this to set a specific error code the process should exit with
	when producing a `cli.Error`.

	Example: `cli.Error.New("something terrible!", SetExitCode(EXIT_BADARGS))`
*/
func SetExitCode(code ExitCode) errors.ErrorOption {
	return errors.SetData(ExitCodeKey, code)
}

// The exit code attached to an error, or EXIT_USER if none was.
func GetExitCode(err error) ExitCode {
	if code, ok := errors.GetData(err, ExitCodeKey).(ExitCode); ok {
		return code
	}
	return EXIT_USER
}
