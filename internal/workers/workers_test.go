package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	t.Setenv(OverrideEnv, "")

	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		want       int
	}{
		{"cpu bound", 1.0, 0, available},
		{"io bound", 2.0, 0, available * 2},
		{"mixed", 1.5, 0, max(1, int(float64(available)*1.5))},
		{"limit caps result", 2.0, 1, 1},
		{"tiny multiplier floors at one", 0.0001, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.multiplier, tt.limit); got != tt.want {
				t.Errorf("Count(%v, %d) = %d, want %d", tt.multiplier, tt.limit, got, tt.want)
			}
		})
	}
}

func TestCountOverride(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		limit    int
		want     int
	}{
		{"override used", "5", 0, 5},
		{"override capped by limit", "50", 4, 4},
		{"invalid override ignored", "abc", 0, runtime.GOMAXPROCS(0)},
		{"zero override ignored", "0", 0, runtime.GOMAXPROCS(0)},
		{"negative override ignored", "-3", 0, runtime.GOMAXPROCS(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(OverrideEnv, tt.envValue)
			if got := Count(1.0, tt.limit); got != tt.want {
				t.Errorf("Count(1.0, %d) with %s=%s = %d, want %d", tt.limit, OverrideEnv, tt.envValue, got, tt.want)
			}
		})
	}
}

func TestOverride(t *testing.T) {
	t.Setenv(OverrideEnv, "7")
	if n, ok := Override(); !ok || n != 7 {
		t.Errorf("Override() = %d, %v; want 7, true", n, ok)
	}

	t.Setenv(OverrideEnv, "")
	if _, ok := Override(); ok {
		t.Error("empty override should not be reported")
	}
}

func TestForIO(t *testing.T) {
	t.Setenv(OverrideEnv, "")

	if got, want := ForIO(0), runtime.GOMAXPROCS(0)*2; got != want {
		t.Errorf("ForIO(0) = %d, want %d", got, want)
	}
	if got := ForIO(1); got != 1 {
		t.Errorf("ForIO(1) = %d, want 1", got)
	}
}
