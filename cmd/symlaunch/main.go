package main

import (
	"os"

	"github.com/minimario/symlaunch/cmd/symlaunch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
