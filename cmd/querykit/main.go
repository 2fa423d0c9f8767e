// Command querykit compiles and runs backend-agnostic queries.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/querykit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own ExitErrors; flag and setup errors are not.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
