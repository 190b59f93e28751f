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
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/ecompass/internal/app"
	"github.com/relabs-tech/ecompass/internal/config"
)

func main() {
	configPath := flag.String("config", "ecompass_config.txt", "path to the configuration file")
	nmea := flag.Bool("nmea", false, "read HDG sentences from the NMEA serial port instead of MQTT")
	mock := flag.Bool("mock", false, "print readings from the mock source, no hardware or broker")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *mock {
		log.Println("starting e-compass console (mock)")
		if err := app.RunMockConsole(ctx, os.Stdout, clock.New(), 100*time.Millisecond); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var err error
	if *nmea {
		log.Println("starting e-compass console (NMEA listener)")
		err = app.RunConsoleNMEA(ctx, os.Stdout)
	} else {
		log.Println("starting e-compass console (MQTT subscriber)")
		err = app.RunConsoleMQTT(ctx, os.Stdout)
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
