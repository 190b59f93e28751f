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
	flag.Parse()

	log.Println("starting HMC5883L/MPU-6050 register debug tool (standalone)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Println("Note: stop the ecompass service first, both tools drive the same I2C bus")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunRegisterDebug(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
