package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/sensim/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
