package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker         string
	MQTTClientIDCal    string
	MQTTClientIDMag    string
	MQTTClientIDGeomag string

	// Topics
	TopicMag            string
	TopicParamSet       string
	TopicReferenceField string

	// Calibration
	CalDurationSec        int     // collection window, seconds
	RANSACIterations      int     // iteration budget
	InlierThreshold       float64 // µT
	MeasurementSkip       int     // discard this many samples after each kept one
	MeasurementThrottleMS int     // minimum spacing between kept samples, ms
	ReferenceFieldUT      float64 // local geomagnetic field magnitude, µT

	// Magnetometer hardware (mag_producer)
	MagI2CBus           string
	MagI2CAddr          uint16
	MagODRHz            int
	MagAvgSamples       int
	MagGainCode         int
	MagSampleIntervalMS int

	// GPS (geomag_producer)
	GPSSerialPort string
	GPSBaudRate   int

	// Web Server
	WebServerPort int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot access it directly.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock for
//     initialization, read lock for Get() allows multiple concurrent readers.
//
// External code must use InitGlobal() to set and Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_CAL":
		c.MQTTClientIDCal = value
	case "MQTT_CLIENT_ID_MAG":
		c.MQTTClientIDMag = value
	case "MQTT_CLIENT_ID_GEOMAG":
		c.MQTTClientIDGeomag = value

	// Topics
	case "TOPIC_MAG":
		c.TopicMag = value
	case "TOPIC_PARAM_SET":
		c.TopicParamSet = value
	case "TOPIC_REFERENCE_FIELD":
		c.TopicReferenceField = value

	// Calibration
	case "CAL_DURATION_SEC":
		sec, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CAL_DURATION_SEC %q: %w", value, err)
		}
		if sec <= 0 {
			return fmt.Errorf("CAL_DURATION_SEC must be positive, got %d", sec)
		}
		c.CalDurationSec = sec
	case "RANSAC_ITERATIONS":
		iters, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid RANSAC_ITERATIONS %q: %w", value, err)
		}
		if iters <= 0 {
			return fmt.Errorf("RANSAC_ITERATIONS must be positive, got %d", iters)
		}
		c.RANSACIterations = iters
	case "INLIER_THRESHOLD":
		thresh, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid INLIER_THRESHOLD %q: %w", value, err)
		}
		if thresh <= 0 {
			return fmt.Errorf("INLIER_THRESHOLD must be positive, got %g", thresh)
		}
		c.InlierThreshold = thresh
	case "MEASUREMENT_SKIP":
		skip, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MEASUREMENT_SKIP %q: %w", value, err)
		}
		if skip < 0 {
			return fmt.Errorf("MEASUREMENT_SKIP must not be negative, got %d", skip)
		}
		c.MeasurementSkip = skip
	case "MEASUREMENT_THROTTLE_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MEASUREMENT_THROTTLE_MS %q: %w", value, err)
		}
		if ms < 0 {
			return fmt.Errorf("MEASUREMENT_THROTTLE_MS must not be negative, got %d", ms)
		}
		c.MeasurementThrottleMS = ms
	case "REFERENCE_FIELD_UT":
		ut, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid REFERENCE_FIELD_UT %q: %w", value, err)
		}
		if ut <= 0 {
			return fmt.Errorf("REFERENCE_FIELD_UT must be positive, got %g", ut)
		}
		c.ReferenceFieldUT = ut

	// Magnetometer hardware
	case "MAG_I2C_BUS":
		c.MagI2CBus = value
	case "MAG_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid MAG_I2C_ADDR %q: %w", value, err)
		}
		c.MagI2CAddr = uint16(addr)
	case "MAG_ODR_HZ":
		hz, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_ODR_HZ %q: %w", value, err)
		}
		c.MagODRHz = hz
	case "MAG_AVG_SAMPLES":
		avg, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_AVG_SAMPLES %q: %w", value, err)
		}
		c.MagAvgSamples = avg
	case "MAG_GAIN_CODE":
		gain, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_GAIN_CODE %q: %w", value, err)
		}
		if gain < 0 || gain > 7 {
			return fmt.Errorf("MAG_GAIN_CODE must be 0-7, got %d", gain)
		}
		c.MagGainCode = gain
	case "MAG_SAMPLE_INTERVAL_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_SAMPLE_INTERVAL_MS %q: %w", value, err)
		}
		c.MagSampleIntervalMS = ms

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicMag == "" {
		return fmt.Errorf("TOPIC_MAG is required")
	}
	if c.CalDurationSec == 0 {
		return fmt.Errorf("CAL_DURATION_SEC is required")
	}
	if c.RANSACIterations == 0 {
		return fmt.Errorf("RANSAC_ITERATIONS is required")
	}
	if c.InlierThreshold == 0 {
		return fmt.Errorf("INLIER_THRESHOLD is required")
	}
	if c.ReferenceFieldUT == 0 {
		return fmt.Errorf("REFERENCE_FIELD_UT is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
