package main

import (
	"os"

	"github.com/wonny/dealerai/backend/cmd/dealerai/commands"
)

// main is the entry point for the dealerai CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/dealerai [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
