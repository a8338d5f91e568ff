package main

import (
	"os"

	"github.com/relayd-dev/relayd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
