// Package occupancy defines occupancy samples, their coarse status labels
// and the ingestion-boundary validator.
package occupancy

import (
	"encoding/json"
	"fmt"
)

// Status is the coarse label derived from a single occupancy count.
type Status int

const (
	// Unknown is never produced by Classify. It marks "no data yet".
	Unknown Status = iota
	Vacant
	SlightlyBusy
	VeryCrowded
)

// CrowdedAt is the smallest count labelled VeryCrowded.
const CrowdedAt = 6

// Classify maps a count to its status label. Negative counts classify as
// Vacant; the Validator is what rejects them.
func Classify(count int) Status {
	switch {
	case count <= 0:
		return Vacant
	case count < CrowdedAt:
		return SlightlyBusy
	default:
		return VeryCrowded
	}
}

var statusNames = map[Status]string{
	Unknown:      "unknown",
	Vacant:       "vacant",
	SlightlyBusy: "slightly_busy",
	VeryCrowded:  "very_crowded",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus is the inverse of String.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return Unknown, fmt.Errorf("unknown status %q", name)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
