package granule

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestAsFloat64Matrix(t *testing.T) {
	got, err := asFloat64Matrix([][]float32{{1.5, 2}, {3, 4}})
	if err != nil {
		t.Fatalf("asFloat64Matrix() failed: %v", err)
	}
	if got[0][0] != 1.5 || got[1][1] != 4 {
		t.Errorf("asFloat64Matrix() = %v", got)
	}

	if _, err := asFloat64Matrix("nope"); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestAsFloat64Vector(t *testing.T) {
	got, err := asFloat64Vector([]int16{10, -20})
	if err != nil {
		t.Fatalf("asFloat64Vector() failed: %v", err)
	}
	if got[0] != 10 || got[1] != -20 {
		t.Errorf("asFloat64Vector() = %v", got)
	}

	if _, err := asFloat64Vector([][]float64{{1}}); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestAsUint32Matrix(t *testing.T) {
	got, err := asUint32Matrix([][]int32{{0, 2}, {1073741828, 1}})
	if err != nil {
		t.Fatalf("asUint32Matrix() failed: %v", err)
	}
	if got[1][0] != 1073741828 {
		t.Errorf("asUint32Matrix()[1][0] = %d, want 1073741828", got[1][0])
	}
}

func TestDecodeParams(t *testing.T) {
	p := decodeParams{fill: -32767, hasFill: true, scale: 2, offset: 1}

	if got := p.decode(3); got != 7 {
		t.Errorf("decode(3) = %v, want 7", got)
	}
	if got := p.decode(-32767); !math.IsNaN(got) {
		t.Errorf("decode(fill) = %v, want NaN", got)
	}

	// No attributes at all means values pass through untouched.
	raw := decodeParams{scale: 1}
	if got := raw.decode(0); got != 0 {
		t.Errorf("decode(0) = %v, want 0", got)
	}
}

func TestAttrNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{float32(1.5), 1.5, true},
		{int32(7), 7, true},
		{[]float32{2.5}, 2.5, true},
		{[]float32{1, 2}, 0, false},
		{"text", 0, false},
	}
	for _, tt := range tests {
		got, ok := attrNumber(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("attrNumber(%v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseCoverageTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2016-09-01T10:00:00.000Z", time.Date(2016, 9, 1, 10, 0, 0, 0, time.UTC), false},
		{"2016-09-01T10:00:00Z", time.Date(2016, 9, 1, 10, 0, 0, 0, time.UTC), false},
		{"2016-09-01T10:00:00", time.Date(2016, 9, 1, 10, 0, 0, 0, time.UTC), false},
		{"", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseCoverageTime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseCoverageTime(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseCoverageTime(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseCoverageTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
