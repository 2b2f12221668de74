package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/boptrack/db"
	"github.com/banshee-data/boptrack/internal/bop"
	"github.com/banshee-data/boptrack/internal/monitoring"
	"github.com/banshee-data/boptrack/internal/timeutil"
	"github.com/banshee-data/boptrack/internal/units"
	"github.com/banshee-data/boptrack/samplemux"
)

// TrackSession ties one estimator run to its database record. The estimator
// itself is not safe for concurrent use, so every call into it goes through
// the session mutex; database writes happen outside the lock.
type TrackSession struct {
	mu        sync.Mutex
	estimator *bop.Estimator
	db        *db.DB
	record    db.Session

	// last successful estimate, refreshed by Estimate. BPM serves reads
	// from this cache so GET handlers never pay for a fitting pass.
	lastBPM float64
	lastOK  bool
}

// NewTrackSession registers a new session row and wraps a fresh estimator
// around it.
func NewTrackSession(database *db.DB, cfg bop.Config, label, source string) (*TrackSession, error) {
	record, err := database.CreateSession(label, source)
	if err != nil {
		return nil, fmt.Errorf("failed to create session record: %w", err)
	}
	return &TrackSession{
		estimator: bop.NewEstimator(cfg),
		db:        database,
		record:    record,
	}, nil
}

// ID returns the session identifier used to key recorded samples and
// estimates.
func (s *TrackSession) ID() string {
	return s.record.ID
}

// AddSample buffers one position sample and records it against the session.
// A failed database write is logged rather than propagated; the estimator
// keeps the sample either way.
func (s *TrackSession) AddSample(t, x, y float64) {
	s.mu.Lock()
	s.estimator.Append(t, bop.Point{X: x, Y: y})
	s.mu.Unlock()

	if err := s.db.RecordSample(s.record.ID, db.Sample{T: t, X: x, Y: y}); err != nil {
		monitoring.Logf("failed to record sample: %v", err)
	}
}

// HandleLine routes one feed line. Sample lines feed the estimator, status
// and comment lines are logged at debug level, and anything unrecognised is
// reported back to the caller.
func (s *TrackSession) HandleLine(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	switch samplemux.ClassifyLine(line) {
	case samplemux.LineTypeSample:
		sample, err := samplemux.ParseSample(line)
		if err != nil {
			return err
		}
		s.AddSample(sample.T, sample.X, sample.Y)
		return nil

	case samplemux.LineTypeStatus:
		monitoring.Debugf("tracker status: %s", strings.TrimSpace(line))
		return nil

	case samplemux.LineTypeComment:
		monitoring.Debugf("tracker comment: %s", strings.TrimSpace(line))
		return nil

	default:
		return fmt.Errorf("unrecognised feed line: %q", line)
	}
}

// Estimate runs one estimation pass, refreshes the cached tempo, and
// persists the winning fit. Returns the tempo and whether an estimate is
// available.
func (s *TrackSession) Estimate() (float64, bool) {
	s.mu.Lock()
	bpm, ok := s.estimator.EstimateBPM()
	fit, haveFit := s.estimator.BestFit()
	count := s.estimator.Len()
	s.lastBPM, s.lastOK = bpm, ok
	s.mu.Unlock()

	if !ok || !haveFit {
		return bpm, ok
	}

	est := db.Estimate{
		SessionID:   s.record.ID,
		BPM:         bpm,
		AngularFreq: fit.Params.AngularFreq,
		FitError:    fit.Error,
		SampleCount: count,
	}
	if err := s.db.RecordEstimate(est); err != nil {
		monitoring.Logf("failed to record estimate: %v", err)
	}
	return bpm, ok
}

// BPM reports the most recent estimate without running a fit.
func (s *TrackSession) BPM() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBPM, s.lastOK
}

// SetFrequency overrides the estimated frequency from an external reference
// and refreshes the cached tempo to match.
func (s *TrackSession) SetFrequency(hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.estimator.SetFrequency(hz); err != nil {
		return err
	}
	s.lastBPM = units.BPMFromAngularFreq(units.AngularFreqFromHz(hz))
	s.lastOK = true
	return nil
}

// Reset clears the estimator state and the cached tempo. The session record
// and previously persisted rows are kept.
func (s *TrackSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimator.Reset()
	s.lastBPM, s.lastOK = 0, false
}

// SampleCount returns the number of samples currently buffered.
func (s *TrackSession) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimator.Len()
}

// RunEstimateLoop re-estimates on a fixed interval until the context is
// cancelled. The clock is injectable so tests can drive the loop.
func (s *TrackSession) RunEstimateLoop(ctx context.Context, clock timeutil.Clock, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			if bpm, ok := s.Estimate(); ok {
				monitoring.Debugf("estimate: %.1f bpm over %d samples", bpm, s.SampleCount())
			}
		case <-ctx.Done():
			return
		}
	}
}
