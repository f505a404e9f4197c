package main

import (
	"fmt"
	"os"

	"deskbridge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "deskbridge:", err)
		os.Exit(1)
	}
}
