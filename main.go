// ./main.go
package main

import (
	"github.com/xkilldash9x/hqmux/cmd"
	"github.com/xkilldash9x/hqmux/internal/observability"
)

// main is the entry point for the hqdump CLI.
func main() {
	// Flush any buffered log entries before the process exits.
	defer observability.Sync()
	cmd.Execute()
}
