// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/magcal/internal/app"
	"github.com/relabs-tech/magcal/internal/config"
)

func main() {
	configPath := flag.String("config", "magcal_config.txt", "path to configuration file")
	autostart := flag.Bool("autostart", false, "begin a calibration run immediately")
	flag.Parse()

	log.Println("starting magnetometer calibration service (MQTT subscriber)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunCalibrationService(*autostart); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
