package gps

// Fix is the position fix the geomagnetic reference-field producer works
// from, suitable for JSON and MQTT.
type Fix struct {
	Time      string  `json:"time"`     // e.g. "12:34:56"
	Date      string  `json:"date"`     // e.g. "2026-08-29"
	Latitude  float64 `json:"lat"`      // decimal degrees
	Longitude float64 `json:"lon"`      // decimal degrees
	Validity  string  `json:"validity"` // "A" (valid) / "V" (void)
}

// Valid reports whether the fix carries a usable position.
func (f Fix) Valid() bool {
	return f.Validity == "A"
}
