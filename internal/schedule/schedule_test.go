package schedule

import (
	"testing"
	"time"
)

func TestNextWindowAwakeRunsNow(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 20, 0, 0, time.UTC)
	got := NextWindow(now, time.Hour, []int{0, 1, 2, 3, 4, 5})
	if !got.Equal(now) {
		t.Fatalf("expected immediate run outside quiet hours, got %v", got)
	}
}

func TestNextWindowDefersToEndOfQuietBlock(t *testing.T) {
	now := time.Date(2025, 6, 1, 2, 45, 0, 0, time.UTC)
	got := NextWindow(now, time.Hour, []int{0, 1, 2, 3, 4, 5})
	want := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected deferral to %v, got %v", want, got)
	}
}

func TestNextWindowNoQuietHours(t *testing.T) {
	now := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	if got := NextWindow(now, time.Hour, nil); !got.Equal(now) {
		t.Fatalf("expected immediate run with no quiet hours, got %v", got)
	}
}

func TestNextWindowAllHoursQuietFallsBackToInterval(t *testing.T) {
	all := make([]int, 24)
	for i := range all {
		all[i] = i
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := NextWindow(now, 30*time.Minute, all)
	if !got.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("expected interval fallback, got %v", got)
	}
}
