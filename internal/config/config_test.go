package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `# magcal test configuration
MQTT_BROKER=tcp://localhost:1883
MQTT_CLIENT_ID_CAL=magcal-test

TOPIC_MAG=magcal/mag
TOPIC_PARAM_SET=magcal/param_set
TOPIC_REFERENCE_FIELD=magcal/reference_field

CAL_DURATION_SEC=60
RANSAC_ITERATIONS=100
INLIER_THRESHOLD=1.5
MEASUREMENT_SKIP=2
MEASUREMENT_THROTTLE_MS=20
REFERENCE_FIELD_UT=48.5

MAG_I2C_BUS=1
MAG_I2C_ADDR=0x1E
MAG_GAIN_CODE=1

GPS_SERIAL_PORT=/dev/serial0
GPS_BAUD_RATE=9600

WEB_SERVER_PORT=8080
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "magcal_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, "magcal/mag", cfg.TopicMag)
	assert.Equal(t, 60, cfg.CalDurationSec)
	assert.Equal(t, 100, cfg.RANSACIterations)
	assert.Equal(t, 1.5, cfg.InlierThreshold)
	assert.Equal(t, 2, cfg.MeasurementSkip)
	assert.Equal(t, 20, cfg.MeasurementThrottleMS)
	assert.Equal(t, 48.5, cfg.ReferenceFieldUT)
	assert.Equal(t, uint16(0x1E), cfg.MagI2CAddr)
	assert.Equal(t, 9600, cfg.GPSBaudRate)
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(writeConfig(t, "MQTT_BROKER=tcp://localhost:1883\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOPIC_MAG")
}

func TestLoadUnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, validConfig+"BOGUS_KEY=1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for name, line := range map[string]string{
		"negative duration":   "CAL_DURATION_SEC=-5",
		"zero iterations":     "RANSAC_ITERATIONS=0",
		"negative threshold":  "INLIER_THRESHOLD=-1",
		"negative skip":       "MEASUREMENT_SKIP=-1",
		"bad gain":            "MAG_GAIN_CODE=9",
		"non-numeric field":   "REFERENCE_FIELD_UT=fifty",
		"malformed line":      "JUST_A_KEY",
		"negative throttle":   "MEASUREMENT_THROTTLE_MS=-10",
		"zero referencefield": "REFERENCE_FIELD_UT=0",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, validConfig+line+"\n"))
			assert.Error(t, err)
		})
	}
}
