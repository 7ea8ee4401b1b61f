package main

import (
	"os"

	"github.com/agenthands/ftmresolve/internal/core/dedupe"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(dedupe.ExitCode(err))
	}
}
