package main

import (
	"os"

	"github.com/marklet/marklet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
