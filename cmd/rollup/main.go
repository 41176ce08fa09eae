package main

import (
	"os"

	"github.com/wonny/rollup/cmd/rollup/commands"
)

// main is the entry point for the rollup CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/rollup [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
