package occupancy

import "time"

// Sample is one occupancy reading for a location.
type Sample struct {
	LocationID string    `json:"location_id"`
	Time       time.Time `json:"timestamp"`
	Count      int       `json:"count"`
}

// Status classifies the sample's count.
func (s Sample) Status() Status { return Classify(s.Count) }
