// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package hmc5883 drives an HMC5883L/HMC5983 3-axis magnetometer over I2C.
// Only what the calibration sample producer needs: configuration, identity
// check, and field readings in µT.
package hmc5883

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// Register map (common to HMC5883L and HMC5983).
const (
	regCRA  = 0x00
	regCRB  = 0x01
	regMODE = 0x02
	regDATA = 0x03 // X MSB..LSB, then Z, then Y
	regIDA  = 0x0A
)

// DefaultAddr is the fixed I2C address of the part.
const DefaultAddr = 0x1E

// Saturated axes read this sentinel value.
const overflow = -4096

// Opts configures the device. Zero values select 15 Hz output, no
// averaging, gain code 1 (±1.3 Gauss) and continuous conversion.
type Opts struct {
	Addr       uint16
	ODRHz      int // 3, 7, 15, 30 or 75
	AvgSamples int // 1, 2, 4 or 8
	GainCode   int // 0..7, see datasheet CRB table
}

// Dev is an initialized magnetometer.
type Dev struct {
	dev        i2c.Dev
	lsbPerGaXY float64
	lsbPerGaZ  float64
}

// Datasheet LSB/Gauss per gain code; Z has a slightly different sensitivity.
var (
	gainXY = []float64{1370, 1090, 820, 660, 440, 390, 330, 230}
	gainZ  = []float64{1330, 980, 660, 600, 400, 355, 295, 205}
)

// New configures the device for continuous conversion and verifies its
// identity bytes.
func New(bus i2c.Bus, opts Opts) (*Dev, error) {
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	gc := opts.GainCode
	if gc < 0 || gc > 7 {
		gc = 1
	}

	d := &Dev{
		dev:        i2c.Dev{Addr: addr, Bus: bus},
		lsbPerGaXY: gainXY[gc],
		lsbPerGaZ:  gainZ[gc],
	}

	id := make([]byte, 3)
	if err := d.readReg(regIDA, id); err != nil {
		return nil, fmt.Errorf("hmc5883: reading identity: %w", err)
	}
	if id[0] != 'H' || id[1] != '4' || id[2] != '3' {
		return nil, fmt.Errorf("hmc5883: unexpected identity %q at addr 0x%X", id, addr)
	}

	cra := byte(0)
	switch opts.AvgSamples {
	case 8:
		cra |= 0b11 << 5
	case 4:
		cra |= 0b10 << 5
	case 2:
		cra |= 0b01 << 5
	}
	switch opts.ODRHz {
	case 75:
		cra |= 0b110 << 2
	case 30:
		cra |= 0b101 << 2
	case 7:
		cra |= 0b011 << 2
	case 3:
		cra |= 0b010 << 2
	default: // 15 Hz
		cra |= 0b100 << 2
	}
	if err := d.writeReg(regCRA, cra); err != nil {
		return nil, fmt.Errorf("hmc5883: configuring CRA: %w", err)
	}
	if err := d.writeReg(regCRB, byte(gc)<<5); err != nil {
		return nil, fmt.Errorf("hmc5883: configuring CRB: %w", err)
	}
	// Continuous conversion mode.
	if err := d.writeReg(regMODE, 0x00); err != nil {
		return nil, fmt.Errorf("hmc5883: configuring mode: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	return d, nil
}

// SenseRaw reads one conversion as signed counts in X,Y,Z order.
func (d *Dev) SenseRaw() (x, y, z int16, err error) {
	data := make([]byte, 6)
	if err := d.readReg(regDATA, data); err != nil {
		return 0, 0, 0, err
	}
	x = int16(data[0])<<8 | int16(data[1])
	z = int16(data[2])<<8 | int16(data[3])
	y = int16(data[4])<<8 | int16(data[5])
	if x == overflow || y == overflow || z == overflow {
		return 0, 0, 0, fmt.Errorf("hmc5883: sensor saturated, reduce gain")
	}
	return x, y, z, nil
}

// Sense reads one conversion scaled to µT.
func (d *Dev) Sense() (x, y, z float64, err error) {
	rx, ry, rz, err := d.SenseRaw()
	if err != nil {
		return 0, 0, 0, err
	}
	// counts → Gauss → µT (1 Gauss = 100 µT)
	return float64(rx) / d.lsbPerGaXY * 100,
		float64(ry) / d.lsbPerGaXY * 100,
		float64(rz) / d.lsbPerGaZ * 100, nil
}

func (d *Dev) writeReg(addr, val byte) error {
	return d.dev.Tx([]byte{addr, val}, nil)
}

func (d *Dev) readReg(addr byte, out []byte) error {
	return d.dev.Tx([]byte{addr}, out)
}
