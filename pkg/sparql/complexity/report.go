package complexity

import (
	"bytes"
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// Report is the outcome of analyzing one query. Allowed is true only when
// Violations is empty.
type Report struct {
	Allowed              bool          `yaml:"allowed" json:"allowed"`
	Risk                 RiskLevel     `yaml:"risk" json:"risk"`
	Cost                 int           `yaml:"cost" json:"cost"`
	TimeClass            TimeClass     `yaml:"time_class" json:"time_class"`
	EstimatedMemoryBytes uint64        `yaml:"estimated_memory_bytes" json:"estimated_memory_bytes"`
	EstimatedDurationMs  int64         `yaml:"estimated_duration_ms" json:"estimated_duration_ms"`
	EstimatedDuration    time.Duration `yaml:"-" json:"-"`
	Metrics              Metrics       `yaml:"metrics" json:"metrics"`
	Violations           []string      `yaml:"violations" json:"violations"`
	Recommendations      []string      `yaml:"recommendations" json:"recommendations"`
}

// YAML renders the report with two-space indentation.
func (r *Report) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
