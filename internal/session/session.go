// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/relabs-tech/magcal/internal/ellipsoid"
	"github.com/relabs-tech/magcal/internal/field"
)

// State is the lifecycle of a calibration run.
type State int

const (
	Idle State = iota
	Collecting
	Fitting
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case Fitting:
		return "fitting"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrFitInProgress is returned by Start while a previous run is still in its
// batch fitting stage.
var ErrFitInProgress = errors.New("session: fit in progress, wait for the run to finish")

// ErrRunDiscarded is the terminal error of a Collecting run superseded by a
// new Start before its window closed.
var ErrRunDiscarded = errors.New("session: run discarded by a new start")

// Run identifies one calibration attempt. The session fields are reused
// across restarts; a Run keeps its own terminal outcome so a waiter can tell
// how the attempt it watched actually ended.
type Run struct {
	done chan struct{}
	err  error // written before done is closed
}

// Done returns a channel closed when the attempt reaches a terminal outcome.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err returns the attempt's terminal error: nil on success, ErrRunDiscarded
// when a restart threw the attempt away, the pipeline error otherwise. Nil
// until Done is closed.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Options configures a calibration run.
type Options struct {
	Duration        time.Duration // collection window from the first accepted sample
	Iterations      int           // RANSAC iteration budget
	InlierThreshold float64       // µT residual for a sample to support a model
	Skip            int           // discard this many samples after each accepted one
	Throttle        time.Duration // minimum spacing between accepted samples
	ReferenceField  float64       // local geomagnetic field magnitude, µT
	Seed            int64         // RANSAC seed; 0 means time-based
}

func (o Options) validate() error {
	if o.Duration <= 0 {
		return errors.New("session: collection duration must be positive")
	}
	if o.Iterations <= 0 {
		return errors.New("session: RANSAC iteration count must be positive")
	}
	if o.InlierThreshold <= 0 {
		return errors.New("session: inlier threshold must be positive")
	}
	if o.Skip < 0 {
		return errors.New("session: measurement skip count must not be negative")
	}
	if o.Throttle < 0 {
		return errors.New("session: measurement throttle must not be negative")
	}
	if o.ReferenceField <= 0 {
		return errors.New("session: reference field strength must be positive")
	}
	return nil
}

// Session owns a single calibration run at a time: the sample buffer during
// collection, the batch fitting stage on its own goroutine, and the result
// cell. All methods are safe for concurrent use; samples are expected from
// one producer goroutine.
type Session struct {
	mu   sync.Mutex
	opts Options

	state       State
	buf         []field.Vec3
	skipLeft    int
	firstAccept time.Time
	lastAccept  time.Time
	timer       *time.Timer
	run         *Run

	result  *ellipsoid.Calibration // last successful run, kept across failures
	runErr  error
	inliers int
}

// New validates the options and returns an idle session.
func New(opts Options) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	close(done)
	return &Session{opts: opts, run: &Run{done: done}}, nil
}

// Start transitions to Collecting with a fresh buffer. Starting over while a
// previous run is still Collecting discards its buffer; starting during
// Fitting is refused.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Fitting {
		return ErrFitInProgress
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.state == Collecting {
		// The discarded run never reaches Complete or Failed; release its
		// waiters with a terminal error of their own.
		s.run.err = ErrRunDiscarded
		close(s.run.done)
	}
	s.buf = nil
	s.skipLeft = 0
	s.firstAccept = time.Time{}
	s.lastAccept = time.Time{}
	s.runErr = nil
	s.inliers = 0
	s.state = Collecting
	s.run = &Run{done: make(chan struct{})}
	return nil
}

// SetReferenceField updates the reference field strength used by the next
// run. Refused while a run is fitting.
func (s *Session) SetReferenceField(ut float64) error {
	if ut <= 0 {
		return errors.New("session: reference field strength must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Fitting {
		return ErrFitInProgress
	}
	s.opts.ReferenceField = ut
	return nil
}

// Offer appends a sample to the collection buffer, subject to the skip-count
// and throttle configuration, and reports whether it was accepted. The first
// accepted sample opens the collection window.
func (s *Session) Offer(m field.Sample) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Collecting {
		return false
	}

	when := m.Time
	if when.IsZero() {
		when = time.Now()
	}
	if s.skipLeft > 0 {
		s.skipLeft--
		return false
	}
	if s.opts.Throttle > 0 && !s.lastAccept.IsZero() && when.Sub(s.lastAccept) < s.opts.Throttle {
		return false
	}

	s.buf = append(s.buf, m.Vec3)
	s.lastAccept = when
	s.skipLeft = s.opts.Skip
	if s.firstAccept.IsZero() {
		s.firstAccept = when
		r := s.run
		s.timer = time.AfterFunc(s.opts.Duration, func() { s.closeWindow(r) })
	}
	return true
}

// closeWindow freezes the buffer and hands it to the fitting pipeline off the
// sample-ingestion goroutine. r names the run whose window expired; a timer
// left over from a discarded run fires with a stale r and must not touch the
// run that replaced it.
func (s *Session) closeWindow(r *Run) {
	s.mu.Lock()
	if s.run != r || s.state != Collecting {
		s.mu.Unlock()
		return
	}
	s.state = Fitting
	pts := s.buf
	s.buf = nil
	opts := s.opts
	s.mu.Unlock()

	go s.fit(pts, opts, r)
}

func (s *Session) fit(pts []field.Vec3, opts Options, r *Run) {
	cal, inliers, err := run(pts, opts)

	s.mu.Lock()
	if err != nil {
		s.state = Failed
		s.runErr = err
	} else {
		s.state = Complete
		s.result = &cal
		s.inliers = inliers
	}
	r.err = err
	s.mu.Unlock()
	close(r.done)
}

// run is the blocking batch pipeline: RANSAC, refit, parameter derivation.
func run(pts []field.Vec3, opts Options) (ellipsoid.Calibration, int, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	est := &ellipsoid.Estimator{
		Iterations:      opts.Iterations,
		InlierThreshold: opts.InlierThreshold,
		Rand:            rand.New(rand.NewSource(seed)),
	}
	q, inliers, err := est.Fit(pts)
	if err != nil {
		return ellipsoid.Calibration{}, 0, err
	}
	cal, err := ellipsoid.Derive(q, opts.ReferenceField)
	if err != nil {
		return ellipsoid.Calibration{}, 0, err
	}
	return cal, len(inliers), nil
}

// State returns the current run state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the most recent successful calibration. A failed run leaves
// the previous result untouched; ok is false until any run has completed.
func (s *Session) Result() (ellipsoid.Calibration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return ellipsoid.Calibration{}, false
	}
	return *s.result, true
}

// Err returns the failure reason of the last run, nil if it completed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Inliers returns the inlier count of the last completed run.
func (s *Session) Inliers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inliers
}

// SampleCount returns the number of samples accepted so far in the current
// collection window.
func (s *Session) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// CurrentRun returns a handle for the run started by the most recent Start.
// Capture it right after Start to watch that specific attempt across
// restarts. Before any Start the handle is already done.
func (s *Session) CurrentRun() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// Done returns a channel closed when the current run terminates: Complete,
// Failed, or discarded by a restart. Before any Start it is already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.done
}
