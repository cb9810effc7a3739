// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/field"
	"github.com/relabs-tech/magcal/internal/hmc5883"
)

// RunMagProducer reads the HMC5883L over I2C and publishes samples to the
// magnetometer topic. With mock=true no hardware is touched; synthetic
// distorted-sphere samples are published instead, which is enough to exercise
// the whole calibration pipeline on a desk.
func RunMagProducer(mock bool) error {
	cfg := config.Get()

	clientID := cfg.MQTTClientIDMag
	if clientID == "" {
		clientID = "magcal-mag-producer"
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.MQTTBroker).SetClientID(clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("mag: connected to MQTT broker at %s", cfg.MQTTBroker)

	ms := cfg.MagSampleIntervalMS
	if ms <= 0 {
		ms = 100
	}
	interval := time.Duration(ms) * time.Millisecond

	var sense func() (field.Vec3, error)
	if mock {
		src := field.NewMockSource(time.Now().UnixNano())
		sense = func() (field.Vec3, error) {
			s, err := src.Next()
			return s.Vec3, err
		}
		log.Println("mag: producer started in mock mode")
	} else {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("periph host init: %w", err)
		}
		busName := cfg.MagI2CBus
		if busName == "" {
			busName = "1"
		}
		bus, err := i2creg.Open(busName)
		if err != nil {
			return fmt.Errorf("i2c open on bus %s: %w", busName, err)
		}
		defer bus.Close()

		dev, err := hmc5883.New(bus, hmc5883.Opts{
			Addr:       cfg.MagI2CAddr,
			ODRHz:      cfg.MagODRHz,
			AvgSamples: cfg.MagAvgSamples,
			GainCode:   cfg.MagGainCode,
		})
		if err != nil {
			return fmt.Errorf("hmc5883 init: %w", err)
		}
		sense = func() (field.Vec3, error) {
			x, y, z, err := dev.Sense()
			return field.Vec3{X: x, Y: y, Z: z}, err
		}
		log.Printf("mag: producer started on i2c bus %s addr 0x%X", busName, cfg.MagI2CAddr)
	}

	for {
		v, err := sense()
		if err != nil {
			log.Printf("mag: read error: %v", err)
			time.Sleep(interval)
			continue
		}
		payload := magPayload{
			Mx:   int16(math.Round(v.X * 10)),
			My:   int16(math.Round(v.Y * 10)),
			Mz:   int16(math.Round(v.Z * 10)),
			Norm: v.Norm(),
			Time: time.Now().UTC().Format(time.RFC3339),
		}
		b, err := json.Marshal(payload)
		if err != nil {
			log.Printf("mag: json marshal error: %v", err)
			continue
		}
		token := client.Publish(cfg.TopicMag, 0, false, b)
		token.Wait()
		if token.Error() != nil {
			log.Printf("mag: publish error: %v", token.Error())
		}
		time.Sleep(interval)
	}
}
