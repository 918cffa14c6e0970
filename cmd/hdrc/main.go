// Command hdrc is a hierarchical, incremental design-rule checker.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/hdrc/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// Flag and argument errors from cobra itself.
		fmt.Fprintln(os.Stderr, "Error:", err)
		err = cli.WrapExitError(cli.ExitCommandError, "invalid usage", err)
	}
	os.Exit(cli.GetExitCode(err))
}
