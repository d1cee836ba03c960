package util

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	got, ok := ParseDate("2026-08-28")
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	want := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	if _, ok := ParseDate("28/08/2026"); ok {
		t.Fatalf("unexpected parse of non-ISO date")
	}
	if _, ok := ParseDate(""); ok {
		t.Fatalf("unexpected parse of empty string")
	}
}

func TestParseDateDefault(t *testing.T) {
	def := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := ParseDateDefault("bogus", def); !got.Equal(def) {
		t.Fatalf("got %v, want default", got)
	}
}

func TestPrevTradingDay(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-08-28", "2026-08-27"}, // Fri -> Thu
		{"2026-08-31", "2026-08-28"}, // Mon -> Fri
		{"2026-08-30", "2026-08-28"}, // Sun -> Fri
	}
	for _, tt := range tests {
		in, _ := ParseDate(tt.in)
		want, _ := ParseDate(tt.want)
		if got := PrevTradingDay(in); !got.Equal(want) {
			t.Errorf("PrevTradingDay(%s) = %v, want %v", tt.in, got, want)
		}
	}
}

func TestLastTradingDay(t *testing.T) {
	fri, _ := ParseDate("2026-08-28")
	sat, _ := ParseDate("2026-08-29")

	if got := LastTradingDay(fri); !got.Equal(fri) {
		t.Errorf("weekday should map to itself, got %v", got)
	}
	if got := LastTradingDay(sat); !got.Equal(fri) {
		t.Errorf("saturday should map to friday, got %v", got)
	}
}

func TestMidnight(t *testing.T) {
	in := time.Date(2026, 8, 28, 15, 4, 5, 0, time.UTC)
	want := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	if got := Midnight(in); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
