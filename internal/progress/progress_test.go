package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestNewTracker(t *testing.T) {
	tests := []struct {
		name  string
		label string
		total int
	}{
		{"standard tracker", "Analyzing", 100},
		{"zero total", "Empty run", 0},
		{"single file", "One file", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTrackerTo(&bytes.Buffer{}, tt.label, tt.total)
			if tracker.bar == nil {
				t.Error("tracker.bar should not be nil")
			}
			if tracker.label != tt.label {
				t.Errorf("tracker.label = %q, want %q", tracker.label, tt.label)
			}
		})
	}
}

func TestNewSpinner(t *testing.T) {
	tracker := NewSpinner("Loading rules")
	if tracker.bar == nil {
		t.Fatal("tracker.bar should not be nil")
	}
	tracker.FinishSuccess()
}

func TestTrackerTickConcurrent(t *testing.T) {
	tracker := NewTrackerTo(&bytes.Buffer{}, "Concurrent", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.Tick()
			}
		}()
	}
	wg.Wait()

	if got := tracker.Done(); got != 1000 {
		t.Errorf("Done() = %d, want 1000", got)
	}
	tracker.FinishSuccess()
}

func TestTrackerFinishPartial(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewTrackerTo(&buf, "Analyzing", 3)
	tracker.Tick()
	tracker.FinishPartial(1, 2)

	if !strings.Contains(buf.String(), "Analyzing: 1 failed, 2 partial") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestTrackerFinishError(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewTrackerTo(&buf, "Analyzing", 3)
	tracker.FinishError(errors.New("engine not found"))

	if !strings.Contains(buf.String(), "Analyzing error: engine not found") {
		t.Errorf("output = %q", buf.String())
	}
}
