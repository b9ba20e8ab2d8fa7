// Command warden supervises a worker process and its control session.
package main

import (
	"os"

	"github.com/tessro/warden/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
