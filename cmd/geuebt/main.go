// Command geuebt runs the isolate registry.
package main

import (
	"context"
	"os"

	"geuebt/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
