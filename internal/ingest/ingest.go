// Package ingest consumes raw sensor samples off the bus, validates them and
// feeds the fusion engine. Malformed or invalid samples are counted and
// dropped; the stream itself is never interrupted.
package ingest

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/sample"
)

// Stats are the ingest drop/accept counters, readable at any time.
type Stats struct {
	FacialAccepted  uint64 `json:"facial_accepted"`
	FacialRejected  uint64 `json:"facial_rejected"`
	PhysioAccepted  uint64 `json:"physio_accepted"`
	PhysioRejected  uint64 `json:"physio_rejected"`
}

// Ingestor adapts bus messages into fusion engine submissions.
type Ingestor struct {
	engine *fusion.Engine
	logger *slog.Logger

	facialAccepted atomic.Uint64
	facialRejected atomic.Uint64
	physioAccepted atomic.Uint64
	physioRejected atomic.Uint64
}

func New(engine *fusion.Engine, logger *slog.Logger) *Ingestor {
	return &Ingestor{engine: engine, logger: logger}
}

// HandleFacial is the bus handler for facial sample messages.
func (i *Ingestor) HandleFacial(subject string, data []byte) {
	var s sample.FacialSample
	if err := json.Unmarshal(data, &s); err != nil {
		i.facialRejected.Add(1)
		i.logger.Warn("malformed facial sample", "subject", subject, "error", err)
		return
	}
	if err := sample.ValidateFacial(s); err != nil {
		i.facialRejected.Add(1)
		i.logger.Warn("invalid facial sample", "subject", subject, "error", err)
		return
	}
	i.engine.SubmitFacialSample(s)
	i.facialAccepted.Add(1)
}

// HandlePhysio is the bus handler for physiological sample messages.
func (i *Ingestor) HandlePhysio(subject string, data []byte) {
	var s sample.PhysiologicalSample
	if err := json.Unmarshal(data, &s); err != nil {
		i.physioRejected.Add(1)
		i.logger.Warn("malformed physiological sample", "subject", subject, "error", err)
		return
	}
	if err := sample.ValidatePhysiological(s); err != nil {
		i.physioRejected.Add(1)
		i.logger.Warn("invalid physiological sample", "subject", subject, "error", err)
		return
	}
	i.engine.SubmitPhysiologicalSample(s)
	i.physioAccepted.Add(1)
}

// Stats returns a snapshot of the counters.
func (i *Ingestor) Stats() Stats {
	return Stats{
		FacialAccepted: i.facialAccepted.Load(),
		FacialRejected: i.facialRejected.Load(),
		PhysioAccepted: i.physioAccepted.Load(),
		PhysioRejected: i.physioRejected.Load(),
	}
}
