// Package poller fetches occupancy counts from the camera API on a fixed
// interval and hands them to the ingestion pipeline.
package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/banshee-data/queue.report/internal/httputil"
	"github.com/banshee-data/queue.report/internal/monitoring"
	"github.com/banshee-data/queue.report/internal/occupancy"
	"github.com/banshee-data/queue.report/internal/timeutil"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 10 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// Sink receives every fetched sample.
type Sink interface {
	Ingest(ctx context.Context, s occupancy.Sample) error
}

// Poller fetches one location's count from URL every Interval.
type Poller struct {
	URL        string
	LocationID string
	// CameraID selects the record in multi-camera responses. Defaults to
	// LocationID.
	CameraID string
	Interval time.Duration
	Client   httputil.HTTPClient
	Clock    timeutil.Clock
	Sink     Sink
}

// New returns a poller with the default interval, a real clock and a
// standard HTTP client.
func New(apiURL, locationID string, sink Sink) *Poller {
	return &Poller{
		URL:        apiURL,
		LocationID: locationID,
		Interval:   DefaultInterval,
		Client:     httputil.NewStandardClient(0),
		Clock:      timeutil.RealClock{},
		Sink:       sink,
	}
}

// requestURL appends the cache-busting _ parameter.
func (p *Poller) requestURL(now time.Time) (string, error) {
	u, err := url.Parse(p.URL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	q := u.Query()
	q.Set("_", strconv.FormatInt(now.UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch performs one request and decodes the sample.
func (p *Poller) Fetch(ctx context.Context) (occupancy.Sample, error) {
	now := p.Clock.Now()
	target, err := p.requestURL(now)
	if err != nil {
		return occupancy.Sample{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return occupancy.Sample{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return occupancy.Sample{}, fmt.Errorf("fetch occupancy: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return occupancy.Sample{}, fmt.Errorf("fetch occupancy: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return occupancy.Sample{}, fmt.Errorf("read occupancy response: %w", err)
	}

	camera := p.CameraID
	if camera == "" {
		camera = p.LocationID
	}
	d, err := Decode(body, camera)
	if err != nil {
		return occupancy.Sample{}, err
	}
	if !d.Matched {
		monitoring.Logf("poller: camera %s not in response, using first record", camera)
	}
	return occupancy.Sample{LocationID: p.LocationID, Time: now, Count: d.Count}, nil
}

// PollOnce fetches a sample and passes it to the sink.
func (p *Poller) PollOnce(ctx context.Context) error {
	s, err := p.Fetch(ctx)
	if err != nil {
		return err
	}
	return p.Sink.Ingest(ctx, s)
}

// Run polls immediately and then on every tick until ctx is done. Errors
// are logged and the next tick retries.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if err := p.PollOnce(ctx); err != nil {
		monitoring.Logf("poller: %v", err)
	}

	ticker := p.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := p.PollOnce(ctx); err != nil {
				monitoring.Logf("poller: %v", err)
			}
		}
	}
}
