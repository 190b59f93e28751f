// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/ecompass/internal/app"
	"github.com/relabs-tech/ecompass/internal/config"
)

func main() {
	configPath := flag.String("config", "ecompass_config.txt", "path to the configuration file")
	simulate := flag.Bool("simulate", false, "use simulated sensors and an in-memory display")
	flag.Parse()

	log.Println("starting e-compass")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunCompass(ctx, *simulate); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
