package remotedata

import (
	"errors"
	"testing"
)

func TestGroupStatus(t *testing.T) {
	tests := []struct {
		name    string
		results []Statuser
		want    Status
	}{
		{"empty", nil, StatusComplete},
		{"all complete", []Statuser{Complete(1), Complete("a")}, StatusComplete},
		{"one pending", []Statuser{Complete(1), Pending[string]()}, StatusPending},
		{"error wins over pending", []Statuser{Pending[int](), Failed[int](errors.New("boom"))}, StatusError},
		{"zero value is pending", []Statuser{Result[int]{}}, StatusPending},
		{"nil entry is pending", []Statuser{Complete(1), nil}, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GroupStatus(tt.results...); got != tt.want {
				t.Errorf("GroupStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFrom(t *testing.T) {
	r := From(42, nil)
	if !r.IsComplete() || r.Value != 42 {
		t.Errorf("expected complete result with 42, got %+v", r)
	}

	failed := From(0, errors.New("down"))
	if failed.LoadStatus() != StatusError {
		t.Errorf("expected error status, got %s", failed.LoadStatus())
	}
	if failed.Err == nil {
		t.Error("expected error to be kept")
	}
}
