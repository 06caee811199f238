// Package main starts the poker real-time service and handles termination.
//
// The process is a transport adapter around session actors and event fan-out;
// all estimation state lives in memory and dies with the process.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	pokercmd "github.com/louisbranch/pointing.space/internal/cmd/poker"
)

func main() {
	cfg, err := pokercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[POKER] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pokercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
