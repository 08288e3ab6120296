package main

import (
	"os"

	"github.com/fleetwise/fleetcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
