// Command convstore migrates messages between point-to-point and
// conversation-grouped storage and manages post tags.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/convstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		code := cli.GetExitCode(err)
		if code == cli.ExitCommandError {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(code)
	}
}
