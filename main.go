// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"specview/cmd"
	"specview/internal/log"
	"specview/pkg/build"
)

// main is the entry point for the spectrum analyzer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Configure logging
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Capture audio into the pipeline
//   - Render and publish spectra
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop capture and recording
//   - Close transports
func main() {
	// Binaries built without ldflags fall back to the module build info.
	if err := build.Initialize(); err != nil {
		build.FromModule()
	}

	options, err := cmd.ParseArgs(os.Args[1:], os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	// --help and --version select no command.
	if options.Command == "" {
		return
	}

	log.SetLevel(options.Config.Level())
	logger := log.New(os.Stderr, "specview")
	log.SetDefault(logger)

	switch options.Command {
	case cmd.CommandList:
		err = cmd.RunList(os.Stdout, options)

	case cmd.CommandAnalyze:
		err = cmd.RunAnalyze(os.Stdout, options, logger)

	case cmd.CommandRun:
		// Setup signal handling for graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// The monitor owns the terminal, so logs are dropped while it runs.
		if options.Config.Render.TUI {
			logger = log.Nop()
		}
		err = cmd.RunEngine(ctx, options, logger)
	}

	if err != nil {
		log.Fatalf("%v", err)
	}
}
