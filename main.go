package main

import (
	"os"

	"github.com/nullwave/qtun/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
