package main

import (
	"os"

	"github.com/codemode/codemode/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
