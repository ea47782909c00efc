// Command discoveryd runs the entity discovery pipeline: plan connector
// calls from a natural-language query under a loaded lens contract,
// extract and merge the results, and optionally persist the final
// entities. A "serve" subcommand exposes a liveness endpoint for
// container orchestration the way cmd/tarsy/main.go does.
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitInvalidInput)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCommand(os.Args[2:]))
	case "serve":
		serveCommand(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		usage()
		os.Exit(exitInvalidInput)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: discoveryd run <query> [--mode resolve-one|discover-many] [--budget <usd>] [--lens <id>] [--persist]")
	fmt.Fprintln(os.Stderr, "       discoveryd serve [--addr :8080]")
}

func initLogging() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// Exit codes per the CLI's documented contract: 0 success, 2 invalid
// input, 3 lens validation error, 4 all connectors failed, 5 persistence
// error.
const (
	exitSuccess = iota
	_
	exitInvalidInput
	exitLensValidation
	exitAllConnectorsFailed
	exitPersistence
)
