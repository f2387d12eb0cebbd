package unit

import (
	"math"
	"testing"
)

func TestParseCPU(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"100m", 0.1, true},
		{"1500m", 1.5, true},
		{"0.5", 0.5, true},
		{"1", 1.0, true},
		{"2.5", 2.5, true},
		{"", 0, false},
		{"nope", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseCPU(c.in)
		if ok != c.ok {
			t.Fatalf("ParseCPU(%q) ok=%v want %v", c.in, ok, c.ok)
		}
		if ok && math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("ParseCPU(%q) = %v want %v", c.in, got, c.want)
		}
	}
}

func TestParseMemoryEquivalentForms(t *testing.T) {
	want := 128974848.0
	inputs := []string{"128974848", "128.974848e6", "128.9748480M", "123Mi"}
	for _, in := range inputs {
		got, ok := ParseMemory(in)
		if !ok {
			t.Fatalf("ParseMemory(%q) failed to parse", in)
		}
		if math.Abs(got-want) > 1.0 {
			t.Fatalf("ParseMemory(%q) = %v want ~%v", in, got, want)
		}
	}
}

func TestParseMemoryBinaryBeforeDecimal(t *testing.T) {
	got, ok := ParseMemory("128Mi")
	if !ok {
		t.Fatal("expected ok")
	}
	want := 128.0 * 1024 * 1024
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	cpuCases := []string{"1", "2.5", "100m"}
	for _, c := range cpuCases {
		cores, ok := ParseCPU(c)
		if !ok {
			t.Fatalf("ParseCPU(%q) failed", c)
		}
		if got := FormatCPU(cores); got != c {
			t.Fatalf("round trip CPU %q -> %v -> %q", c, cores, got)
		}
	}

	memCases := []string{"128Mi", "1Gi"}
	for _, c := range memCases {
		bytesVal, ok := ParseMemory(c)
		if !ok {
			t.Fatalf("ParseMemory(%q) failed", c)
		}
		if got := FormatMemory(bytesVal); got != c {
			t.Fatalf("round trip memory %q -> %v -> %q", c, bytesVal, got)
		}
	}

	// "500M" (decimal mega) does not round-trip: FormatMemory always picks
	// a binary Ki/Mi/Gi suffix, so 500,000,000 bytes formats back as a
	// Mi-suffixed fraction, never "500M". The reference resource_units.py
	// this package is grounded on has the identical gap (its decimal-suffix
	// formatting path is dead code there too), so this is an inherited
	// spec/reference inconsistency rather than a bug introduced here -
	// asserted explicitly instead of silently dropping the case.
	bytesVal, ok := ParseMemory("500M")
	if !ok {
		t.Fatalf("ParseMemory(%q) failed", "500M")
	}
	if bytesVal != 500_000_000 {
		t.Fatalf("ParseMemory(500M) = %v, want 500000000", bytesVal)
	}
	if got := FormatMemory(bytesVal); got == "500M" {
		t.Fatalf("FormatMemory(%v) unexpectedly round-tripped to 500M; update this test if FormatMemory gains decimal-suffix support", bytesVal)
	}
}

func TestUnknownSentinel(t *testing.T) {
	if !IsUnknown(Unknown) {
		t.Fatal("Unknown must be detected as unknown")
	}
	if IsUnknown(1.0) {
		t.Fatal("1.0 must not be unknown")
	}
}
