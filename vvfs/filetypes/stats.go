package filetypes

import (
	"sync/atomic"
	"time"
)

type stats struct {
	autoDetected atomic.Int64
	elapsed      atomic.Int64 // nanoseconds
}

func (s *stats) recordAutoDetect(d time.Duration) {
	s.autoDetected.Add(1)
	s.elapsed.Add(int64(d))
}

// Stats is a diagnostics snapshot.
type Stats struct {
	AutoDetected      int64
	AutoDetectElapsed time.Duration
	Generation        int64
	Redetect          RedetectStats
}

func (m *Manager) Stats() Stats {
	return Stats{
		AutoDetected:      m.stats.autoDetected.Load(),
		AutoDetectElapsed: time.Duration(m.stats.elapsed.Load()),
		Generation:        m.generation.Load(),
		Redetect:          m.redetector.Stats(),
	}
}

// GetMetrics returns the snapshot as a flat map for loggers.
func (s Stats) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"auto_detected":        s.AutoDetected,
		"auto_detect_elapsed":  s.AutoDetectElapsed.String(),
		"generation":           s.Generation,
		"redetect_activations": s.Redetect.Activations,
		"redetect_processed":   s.Redetect.Processed,
		"redetect_changed":     s.Redetect.Changed,
		"redetect_crashed":     s.Redetect.Crashed,
		"redetect_queued":      s.Redetect.Queued,
	}
}
