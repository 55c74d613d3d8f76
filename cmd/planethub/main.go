package main

import (
	"os"

	"github.com/planethub/planethub/cmd/planethub/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
