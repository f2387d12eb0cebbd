package severity

import (
	"testing"

	"github.com/optipod/optipod/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestCPUCalculatorThresholds(t *testing.T) {
	cases := []struct {
		current, recommended float64
		want                 Severity
	}{
		{1.0, 1.05, Good},
		{1.0, 1.15, OK},
		{1.0, 1.3, Warning},
		{1.0, 1.6, Critical},
	}
	for _, c := range cases {
		got := Calculate(ptr(c.current), ptr(c.recommended), model.ResourceCPU)
		if got != c.want {
			t.Errorf("cpu(%v, %v) = %s, want %s", c.current, c.recommended, got, c.want)
		}
	}
}

func TestCalculatorAbsentValuesAreWarningUnlessBothNil(t *testing.T) {
	if Calculate(nil, nil, model.ResourceCPU) != Good {
		t.Fatalf("expected Good when both absent")
	}
	if Calculate(ptr(1.0), nil, model.ResourceCPU) != Warning {
		t.Fatalf("expected Warning when one side absent")
	}
}

func TestMemoryCalculatorThresholds(t *testing.T) {
	mib := 1024.0 * 1024
	if got := Calculate(ptr(100*mib), ptr(150*mib), model.ResourceMemory); got != Good {
		t.Fatalf("expected Good, got %s", got)
	}
	if got := Calculate(ptr(100*mib), ptr(700*mib), model.ResourceMemory); got != Critical {
		t.Fatalf("expected Critical, got %s", got)
	}
}

func TestUnregisteredResourceIsUnknown(t *testing.T) {
	if got := Calculate(ptr(1), ptr(1), model.ResourceName("disk")); got != Unknown {
		t.Fatalf("expected Unknown for unregistered resource, got %s", got)
	}
}
