package main

import (
	"os"

	"github.com/datamart/webapp/internal/cli"
)

func main() {
	command := cli.NewRootCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
