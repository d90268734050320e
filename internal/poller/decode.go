package poller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNoRecord means the response held no usable camera record.
	ErrNoRecord = errors.New("no occupancy record in response")
	// ErrUpstream means the upstream API reported failure.
	ErrUpstream = errors.New("upstream reported failure")
)

// flexInt accepts a JSON number or a string that starts with an integer.
type flexInt struct {
	v  int
	ok bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		end := 0
		for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && s[end] == '-') {
			end++
		}
		if n, err := strconv.Atoi(s[:end]); err == nil {
			f.v, f.ok = n, true
		}
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		// booleans, objects and similar are not counters
		return nil
	}
	f.v, f.ok = int(n), true
	return nil
}

// flexID holds a string camera id. Ids of any other JSON type decode
// without error but never match a configured id.
type flexID struct {
	v  string
	ok bool
}

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '"' {
		return nil
	}
	if err := json.Unmarshal(b, &f.v); err != nil {
		return err
	}
	f.ok = true
	return nil
}

func (f flexID) is(id string) bool { return f.ok && f.v == id }

// record is one camera entry. Counter fields are checked in declaration
// order, then the nested data and latestData objects.
type record struct {
	CameraID    flexID `json:"camera_id"`
	CameraIDAlt flexID `json:"cameraId"`
	ID          flexID `json:"id"`

	Counter   flexInt `json:"counter"`
	Count     flexInt `json:"count"`
	People    flexInt `json:"people"`
	Persons   flexInt `json:"persons"`
	Occupancy flexInt `json:"occupancy"`
	Number    flexInt `json:"number"`

	// Only object values are read; strings, arrays and the like are skipped.
	Data       json.RawMessage `json:"data"`
	LatestData json.RawMessage `json:"latestData"`
}

func (r *record) matches(id string) bool {
	return id != "" && (r.CameraID.is(id) || r.CameraIDAlt.is(id) || r.ID.is(id))
}

// nested decodes raw as a record when it is a JSON object.
func nested(raw json.RawMessage) (*record, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false
	}
	return &r, true
}

func (r *record) counter() (int, bool) {
	for _, f := range []flexInt{r.Counter, r.Count, r.People, r.Persons, r.Occupancy, r.Number} {
		if f.ok {
			return f.v, true
		}
	}
	for _, raw := range []json.RawMessage{r.Data, r.LatestData} {
		if sub, ok := nested(raw); ok {
			if n, ok := sub.counter(); ok {
				return n, true
			}
		}
	}
	return 0, false
}

type envelope struct {
	Success *bool           `json:"success"`
	Message json.RawMessage `json:"message"`
}

type resultList struct {
	Results []record `json:"results"`
}

// Decoded is the result of decoding one API response.
type Decoded struct {
	Count int
	// Matched is false when the camera id was not found and the first
	// record was used instead.
	Matched bool
}

// Decode extracts the occupancy count for cameraID from an API response.
// It accepts {"success":..,"message":{"results":[..]}}, a bare array of
// records, or a single record object.
func Decode(body []byte, cameraID string) (Decoded, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Decoded{}, ErrNoRecord
	}

	var records []record
	single := false
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &records); err != nil {
			return Decoded{}, fmt.Errorf("decode array response: %w", err)
		}
	case '{':
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return Decoded{}, fmt.Errorf("decode response: %w", err)
		}
		if env.Success != nil && !*env.Success {
			return Decoded{}, ErrUpstream
		}
		if msg := bytes.TrimSpace(env.Message); len(msg) > 0 && msg[0] == '{' {
			var rl resultList
			if err := json.Unmarshal(msg, &rl); err != nil {
				return Decoded{}, fmt.Errorf("decode results: %w", err)
			}
			if rl.Results != nil {
				records = rl.Results
				break
			}
		}
		var r record
		if err := json.Unmarshal(body, &r); err != nil {
			return Decoded{}, fmt.Errorf("decode record: %w", err)
		}
		records = []record{r}
		single = true
	default:
		return Decoded{}, fmt.Errorf("%w: unexpected response %.20q", ErrNoRecord, body)
	}
	if len(records) == 0 {
		return Decoded{}, ErrNoRecord
	}

	chosen, matched := &records[0], single
	for i := range records {
		if records[i].matches(cameraID) {
			chosen, matched = &records[i], true
			break
		}
	}
	n, ok := chosen.counter()
	if !ok {
		return Decoded{}, fmt.Errorf("%w: record has no counter field", ErrNoRecord)
	}
	return Decoded{Count: n, Matched: matched}, nil
}
