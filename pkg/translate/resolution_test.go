package translate

import (
	"math"
	"testing"
)

func TestCombine14(t *testing.T) {
	tests := []struct {
		msb, lsb uint8
		want     float64
	}{
		{0, 0, 0},
		{127, 127, 1},
		{64, 0, 8192.0 / 16383},
		{0, 1, 1.0 / 16383},
	}
	for _, tt := range tests {
		if got := Combine14(tt.msb, tt.lsb); math.Abs(got-tt.want) > epsilon {
			t.Errorf("Combine14(%d, %d) = %v, want %v", tt.msb, tt.lsb, got, tt.want)
		}
	}
}

func TestSplit14RoundTripAllPairs(t *testing.T) {
	for msb := 0; msb <= 127; msb++ {
		for lsb := 0; lsb <= 127; lsb++ {
			gotMSB, gotLSB := Split14(Combine14(uint8(msb), uint8(lsb)))
			got := int(gotMSB)<<7 | int(gotLSB)
			want := msb<<7 | lsb
			if d := got - want; d < -1 || d > 1 {
				t.Fatalf("Split14(Combine14(%d, %d)) = (%d, %d)", msb, lsb, gotMSB, gotLSB)
			}
		}
	}
}

func TestNormalize7RoundTrip(t *testing.T) {
	for v := 0; v <= 127; v++ {
		if got := Denormalize7(Normalize7(uint8(v))); got != uint8(v) {
			t.Fatalf("Denormalize7(Normalize7(%d)) = %d", v, got)
		}
	}
	if got := Denormalize7(1.5); got != 127 {
		t.Errorf("Denormalize7(1.5) = %d, want 127", got)
	}
}

func TestBendRoundTrip(t *testing.T) {
	for _, v := range []uint16{0, 1, 8192, 16382, 16383} {
		if got := DenormalizeBend(NormalizeBend(v)); got != v {
			t.Errorf("DenormalizeBend(NormalizeBend(%d)) = %d", v, got)
		}
	}
}

func TestMSBCache(t *testing.T) {
	c := NewMSBCache()
	c.Store(0, 1, 64)
	c.Store(0, 2, 10)
	c.Store(1, 1, 20)

	v, ok := c.Lookup(0, 1)
	if !ok || v != 64 {
		t.Errorf("Lookup(0, 1) = %d, %v", v, ok)
	}

	c.Invalidate(0, 1)
	if _, ok := c.Lookup(0, 1); ok {
		t.Error("Lookup after Invalidate succeeded")
	}

	c.InvalidateChannel(0)
	if c.Len() != 1 {
		t.Errorf("Len() after InvalidateChannel = %d, want 1", c.Len())
	}

	c.Reset()
	if c.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", c.Len())
	}
}
