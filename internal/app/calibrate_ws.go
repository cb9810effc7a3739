// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsConn wraps a websocket connection with a write lock so the completion
// goroutine and the action loop don't interleave frames.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(resp WSResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(resp); err != nil {
		log.Printf("calibration: websocket write error: %v", err)
	}
}

// WebSocket message types
type WSMessage struct {
	Action string `json:"action"` // start, status, cancel
}

type WSResponse struct {
	Type    string      `json:"type"` // state, complete, error
	State   string      `json:"state,omitempty"`
	Samples int         `json:"samples,omitempty"`
	Inliers int         `json:"inliers,omitempty"`
	Results interface{} `json:"results,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleCalibrationWS handles the WebSocket connection for calibration
// control. The client drives runs with "start", polls with "status", and
// detaches with "cancel"; completion is pushed when a run finishes.
func (s *Service) HandleCalibrationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn}

	for {
		var msg WSMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			log.Printf("calibration: websocket read error: %v", err)
			break
		}

		switch msg.Action {
		case "start":
			if err := s.StartRun(func(runErr error) {
				if runErr != nil {
					c.send(WSResponse{Type: "error", State: s.session.State().String(), Message: runErr.Error()})
					return
				}
				cal, _ := s.session.Result()
				c.send(WSResponse{
					Type:    "complete",
					State:   s.session.State().String(),
					Samples: s.session.SampleCount(),
					Inliers: s.session.Inliers(),
					Results: cal,
				})
			}); err != nil {
				c.send(WSResponse{Type: "error", Message: err.Error()})
				continue
			}
			c.send(WSResponse{Type: "state", State: s.session.State().String()})

		case "status":
			resp := WSResponse{
				Type:    "state",
				State:   s.session.State().String(),
				Samples: s.session.SampleCount(),
				Inliers: s.session.Inliers(),
			}
			if runErr := s.session.Err(); runErr != nil {
				resp.Message = runErr.Error()
			}
			c.send(resp)

		case "cancel":
			log.Printf("calibration: websocket client detached")
			return
		}
	}
}
