package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
)

// Entry point for the gong striker daemon
func main() {
	var cfgMgr ConfigManager
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	hw, err := openPeripherals(cfgMgr.Get())
	if err != nil {
		log.Fatalf("hardware init: %v", err)
	}
	defer hw.Close()
	server, err := NewServer(&cfgMgr, hw)
	if err != nil {
		log.Fatalf("initialisation error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := server.Start(ctx); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
