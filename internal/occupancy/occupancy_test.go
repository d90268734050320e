package occupancy

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		count int
		want  Status
	}{
		{-3, Vacant},
		{0, Vacant},
		{1, SlightlyBusy},
		{5, SlightlyBusy},
		{6, VeryCrowded},
		{40, VeryCrowded},
	}
	for _, tt := range tests {
		if got := Classify(tt.count); got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestClassifyNeverUnknown(t *testing.T) {
	for c := -10; c < 100; c++ {
		if Classify(c) == Unknown {
			t.Fatalf("Classify(%d) returned Unknown", c)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Status{"status": SlightlyBusy})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"status":"slightly_busy"}` {
		t.Errorf("got %s", b)
	}

	var s Status
	if err := json.Unmarshal([]byte(`"very_crowded"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != VeryCrowded {
		t.Errorf("got %v, want very_crowded", s)
	}
	if err := json.Unmarshal([]byte(`"packed"`), &s); err == nil {
		t.Error("expected error for unknown status name")
	}
}

func TestValidator(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sample := func(offset time.Duration, count int) Sample {
		return Sample{LocationID: "shop", Time: base.Add(offset), Count: count}
	}

	var v Validator
	if err := v.Check(sample(0, 4)); err != nil {
		t.Fatalf("first sample rejected: %v", err)
	}
	v.Accept(sample(0, 4))

	tests := []struct {
		name string
		s    Sample
		want error
	}{
		{"negative", sample(10*time.Second, -1), ErrNegativeCount},
		{"duplicate", sample(0, 4), ErrDuplicate},
		{"out of order", sample(-10*time.Second, 4), ErrOutOfOrder},
		{"no location", Sample{Time: base.Add(time.Minute), Count: 1}, ErrNoLocation},
		{"ok", sample(10*time.Second, 7), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Check(tt.s)
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Check() = %v, want %v", err, tt.want)
			}
		})
	}

	if !v.Last().Equal(base) {
		t.Errorf("Check must not record samples; last = %v", v.Last())
	}
}
