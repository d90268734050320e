package poller

import (
	"context"
	"fmt"

	"github.com/banshee-data/queue.report/internal/monitoring"
	"github.com/banshee-data/queue.report/internal/occupancy"
	"github.com/banshee-data/queue.report/internal/queue"
)

// SampleWriter persists accepted samples. Writing a sample that is already
// stored must succeed without changing it.
type SampleWriter interface {
	InsertSample(ctx context.Context, s occupancy.Sample) error
}

// Ingestor records samples and feeds them to the detector.
type Ingestor struct {
	Registry *queue.Registry
	Samples  SampleWriter
}

// Ingest checks s, writes it to the sample log and then runs it through the
// location's monitor. Rejected samples are dropped without error. A failed
// write at either step leaves the detector where it was, so the same sample
// can be ingested again on the next cycle.
func (in *Ingestor) Ingest(ctx context.Context, s occupancy.Sample) error {
	if err := in.Registry.Check(s); err != nil {
		monitoring.Logf("poller: dropping sample for %s at %s: %v", s.LocationID, s.Time.Format("15:04:05"), err)
		return nil
	}
	if err := in.Samples.InsertSample(ctx, s); err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	if _, err := in.Registry.Observe(ctx, s); err != nil {
		return err
	}
	return nil
}
