package main

import (
	"fmt"
	"os"

	"github.com/spec-kit/it-helpdesk/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", cli.Describe(err))
		os.Exit(1)
	}
}
