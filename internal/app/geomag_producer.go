// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"encoding/json"
	"log"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/geomag"
	"github.com/relabs-tech/magcal/internal/gps"
)

// RunGeomagProducer reads NMEA sentences from the GPS serial port, evaluates
// the geomagnetic field strength at each valid RMC fix, and publishes it
// retained to the reference-field topic so the calibration service can pick
// it up at any time.
func RunGeomagProducer() error {
	cfg := config.Get()

	clientID := cfg.MQTTClientIDGeomag
	if clientID == "" {
		clientID = "magcal-geomag-producer"
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.MQTTBroker).SetClientID(clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("geomag: connected to MQTT broker at %s", cfg.MQTTBroker)

	port := cfg.GPSSerialPort
	if port == "" {
		port = "/dev/serial0"
	}
	baud := cfg.GPSBaudRate
	if baud == 0 {
		baud = 9600
	}
	serialOpts := serial.OpenOptions{
		PortName:        port,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	sp, err := serial.Open(serialOpts)
	if err != nil {
		return err
	}
	defer sp.Close()
	log.Printf("geomag: GPS serial port opened on %s at %d baud", port, baud)

	plat, plon := geomag.DipoleAxisLatLon(time.Now().UTC())
	log.Printf("geomag: dipole model pole at lat=%.1f lon=%.1f", plat, plon)

	reader := bufio.NewReader(sp)
	var current gps.Fix

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("geomag: GPS read error: %v", err)
			return err
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			// noisy GPS or partial sentences
			continue
		}
		if sentence.DataType() != nmea.TypeRMC {
			continue
		}
		m := sentence.(nmea.RMC)

		current.Time = m.Time.String()
		current.Date = m.Date.String()
		current.Latitude = m.Latitude
		current.Longitude = m.Longitude
		current.Validity = string(m.Validity)
		if !current.Valid() {
			continue
		}

		now := time.Now().UTC()
		strength := geomag.FieldStrength(current.Latitude, current.Longitude, now)
		payload := refPayload{
			FieldUT: strength,
			Lat:     current.Latitude,
			Lon:     current.Longitude,
			Time:    now.Format(time.RFC3339),
		}
		b, err := json.Marshal(payload)
		if err != nil {
			log.Printf("geomag: json marshal error: %v", err)
			continue
		}

		token := client.Publish(cfg.TopicReferenceField, 0, true, b)
		token.Wait()
		if token.Error() != nil {
			log.Printf("geomag: publish error: %v", token.Error())
			continue
		}
		log.Printf("geomag: published %.2f µT at lat=%.4f lon=%.4f", strength, current.Latitude, current.Longitude)
	}
}
