package main

import (
	"os"

	"github.com/mfields/tradeshell/cmd/tradeshell/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
