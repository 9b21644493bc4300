package models

import "time"

// ReportState flows through the report pipeline stages. Err keeps the first
// fatal error in its original form.
type ReportState struct {
	Report *Report
	Err    error
}

func NewReportState(id string, symbols []string, now time.Time) *ReportState {
	return &ReportState{
		Report: &Report{
			ID:          id,
			Symbols:     symbols,
			Performance: Performance{},
			StartedAt:   now,
		},
	}
}

// Fail records err as the run's failure and returns it.
func (s *ReportState) Fail(err error) error {
	if s.Err == nil {
		s.Err = err
	}
	return err
}
