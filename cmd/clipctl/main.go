package main

import (
	"os"

	"clip-splitter/internal/logging"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
}
