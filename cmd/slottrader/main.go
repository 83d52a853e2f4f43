package main

import (
	"os"

	"github.com/rustyeddy/slottrader/cmd/slottrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
