package client

import "github.com/rs/zerolog"

// Reporter receives protocol anomalies: reply lines that were dropped and
// calls that were never answered.
type Reporter interface {
	Report(msg string, fields map[string]any)
}

// LogReporter writes anomalies as zerolog warnings
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a LogReporter
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With().Str("component", "rpc-events").Logger()}
}

// Report implements Reporter
func (r *LogReporter) Report(msg string, fields map[string]any) {
	r.logger.Warn().Fields(fields).Msg(msg)
}
