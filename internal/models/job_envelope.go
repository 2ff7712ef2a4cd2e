package models

import (
	"encoding/json"
	"fmt"
)

// JobEnvelope is the wire format of a build-analysis job.
type JobEnvelope struct {
	BuildID       int  `json:"build_id"`
	IgnoreFilters bool `json:"ignore_filters,omitempty"`
}

// ParseJobEnvelope decodes and validates a job envelope payload.
func ParseJobEnvelope(data []byte) (*JobEnvelope, error) {
	var envelope JobEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid job envelope: %w", err)
	}
	if envelope.BuildID == 0 {
		return nil, fmt.Errorf("invalid job envelope: missing build_id")
	}
	return &envelope, nil
}

// ToJSON serializes the envelope.
func (e *JobEnvelope) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize job envelope: %w", err)
	}
	return data, nil
}
