// Command counterbalance assigns study participants to experimental
// conditions and keeps completed runs balanced per session.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/counterbalance/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
