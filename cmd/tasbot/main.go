package main

import (
	"fmt"
	"os"
)

// main is the entry point of the T.A.S Mania bot.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
