package metrics

import coremetrics "github.com/mergeeats/core/core/metrics"

// MultiSink fans assignment results out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the record to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAssignment(res coremetrics.AssignmentResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(res); err != nil {
			return err
		}
	}
	return nil
}
