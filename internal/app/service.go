// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/ellipsoid"
	"github.com/relabs-tech/magcal/internal/field"
	"github.com/relabs-tech/magcal/internal/session"
)

// magPayload is the JSON schema consumed from the magnetometer topic.
// mx,my,mz are µT×10 (int16) to match project conventions.
type magPayload struct {
	Mx   int16   `json:"mx"`
	My   int16   `json:"my"`
	Mz   int16   `json:"mz"`
	Norm float64 `json:"norm"`
	Time string  `json:"time"`
}

// refPayload is the JSON schema of the geomagnetic reference-field topic.
type refPayload struct {
	FieldUT float64 `json:"field_ut"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Time    string  `json:"time"`
}

// paramPayload is one remote parameter assignment published when a run
// completes. Names follow the flight-controller convention
// (MAG_A11_COMP … MAG_Z_BIAS).
type paramPayload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// CalibrationRecord is what gets persisted to disk per completed run.
type CalibrationRecord struct {
	SchemaVersion int    `json:"schema_version"`
	CalibrationAt string `json:"calibration_at"` // RFC3339
	ellipsoid.Calibration
	Inliers int `json:"inlier_count"`
}

// Service ties the calibration session to its transports: the magnetometer
// sample subscription, the reference-field subscription, result publication,
// and the web/websocket control surface.
type Service struct {
	cfg     *config.Config
	session *session.Session
	client  mqtt.Client
}

// NewService builds a service from configuration.
func NewService(cfg *config.Config) (*Service, error) {
	sess, err := session.New(session.Options{
		Duration:        time.Duration(cfg.CalDurationSec) * time.Second,
		Iterations:      cfg.RANSACIterations,
		InlierThreshold: cfg.InlierThreshold,
		Skip:            cfg.MeasurementSkip,
		Throttle:        time.Duration(cfg.MeasurementThrottleMS) * time.Millisecond,
		ReferenceField:  cfg.ReferenceFieldUT,
	})
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, session: sess}, nil
}

// RunCalibrationService is the magcal binary's main loop: connect, subscribe,
// serve the control surface. Blocks until the web server exits.
func RunCalibrationService(autostart bool) error {
	cfg := config.Get()
	svc, err := NewService(cfg)
	if err != nil {
		return err
	}
	if err := svc.connect(); err != nil {
		return err
	}
	defer svc.client.Disconnect(250)

	if autostart {
		if err := svc.StartRun(nil); err != nil {
			return err
		}
	}

	http.HandleFunc("/ws", svc.HandleCalibrationWS)
	http.HandleFunc("/api/calibration", svc.handleLatest)

	port := cfg.WebServerPort
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)
	log.Printf("calibration: web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}

func (s *Service) connect() error {
	clientID := s.cfg.MQTTClientIDCal
	if clientID == "" {
		clientID = "magcal-service"
	}
	opts := mqtt.NewClientOptions().AddBroker(s.cfg.MQTTBroker).SetClientID(clientID)
	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("calibration: connected to MQTT broker at %s", s.cfg.MQTTBroker)

	magToken := s.client.Subscribe(s.cfg.TopicMag, 0, s.onMagSample)
	magToken.Wait()
	if magToken.Error() != nil {
		return magToken.Error()
	}
	log.Printf("calibration: subscribed to %s", s.cfg.TopicMag)

	if s.cfg.TopicReferenceField != "" {
		refToken := s.client.Subscribe(s.cfg.TopicReferenceField, 0, s.onReferenceField)
		refToken.Wait()
		if refToken.Error() != nil {
			return refToken.Error()
		}
		log.Printf("calibration: subscribed to %s", s.cfg.TopicReferenceField)
	}
	return nil
}

func (s *Service) onMagSample(_ mqtt.Client, msg mqtt.Message) {
	var p magPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		log.Printf("calibration: mag unmarshal error: %v", err)
		return
	}
	when, err := time.Parse(time.RFC3339, p.Time)
	if err != nil {
		when = time.Now()
	}
	s.session.Offer(field.Sample{
		Vec3: field.Vec3{X: float64(p.Mx) / 10, Y: float64(p.My) / 10, Z: float64(p.Mz) / 10},
		Time: when,
	})
}

func (s *Service) onReferenceField(_ mqtt.Client, msg mqtt.Message) {
	var p refPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		log.Printf("calibration: reference field unmarshal error: %v", err)
		return
	}
	if err := s.session.SetReferenceField(p.FieldUT); err != nil {
		log.Printf("calibration: reference field %.2f µT rejected: %v", p.FieldUT, err)
		return
	}
	log.Printf("calibration: reference field set to %.2f µT (lat=%.3f lon=%.3f)", p.FieldUT, p.Lat, p.Lon)
}

// StartRun begins a calibration run. When the run finishes, the result is
// published and persisted; notify (optional) is invoked with the run error.
// A run discarded by a later StartRun is not reported: only Complete or
// Failed reach notify.
func (s *Service) StartRun(notify func(err error)) error {
	if err := s.session.Start(); err != nil {
		return err
	}
	log.Println("calibration: run started, collecting samples")
	run := s.session.CurrentRun()
	go func() {
		<-run.Done()
		err := run.Err()
		if errors.Is(err, session.ErrRunDiscarded) {
			// Superseded by a new Start; that run has its own watcher.
			log.Println("calibration: run discarded by a new start")
			return
		}
		if err == nil {
			cal, _ := s.session.Result()
			log.Printf("calibration: run complete, %d inliers", s.session.Inliers())
			if perr := s.publishParams(cal); perr != nil {
				log.Printf("calibration: param publish error: %v", perr)
			}
			if name, werr := s.writeResult(cal); werr != nil {
				log.Printf("calibration: result write error: %v", werr)
			} else {
				log.Printf("calibration: saved results to %s", name)
			}
		} else {
			log.Printf("calibration: run failed: %v", err)
		}
		if notify != nil {
			notify(err)
		}
	}()
	return nil
}

// publishParams pushes the twelve calibration parameters to the param-set
// topic, one assignment per message.
func (s *Service) publishParams(cal ellipsoid.Calibration) error {
	if s.cfg.TopicParamSet == "" {
		return nil
	}
	params := []paramPayload{
		{"MAG_A11_COMP", cal.A[0][0]}, {"MAG_A12_COMP", cal.A[0][1]}, {"MAG_A13_COMP", cal.A[0][2]},
		{"MAG_A21_COMP", cal.A[1][0]}, {"MAG_A22_COMP", cal.A[1][1]}, {"MAG_A23_COMP", cal.A[1][2]},
		{"MAG_A31_COMP", cal.A[2][0]}, {"MAG_A32_COMP", cal.A[2][1]}, {"MAG_A33_COMP", cal.A[2][2]},
		{"MAG_X_BIAS", cal.B.X}, {"MAG_Y_BIAS", cal.B.Y}, {"MAG_Z_BIAS", cal.B.Z},
	}
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		token := s.client.Publish(s.cfg.TopicParamSet, 0, false, b)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("publishing %s: %w", p.Name, token.Error())
		}
	}
	return nil
}

func (s *Service) writeResult(cal ellipsoid.Calibration) (string, error) {
	rec := CalibrationRecord{
		SchemaVersion: 1,
		CalibrationAt: time.Now().Format(time.RFC3339),
		Calibration:   cal,
		Inliers:       s.session.Inliers(),
	}
	name := fmt.Sprintf("mag_%d_calibration.json", time.Now().Unix())
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(name, b, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// handleLatest serves the most recent successful calibration as JSON.
func (s *Service) handleLatest(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.session.Result()
	if !ok {
		http.Error(w, "no calibration yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cal); err != nil {
		log.Printf("calibration: json encode error: %v", err)
	}
}
