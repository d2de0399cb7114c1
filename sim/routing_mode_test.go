package sim

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseRoutingMode(t *testing.T) {
	tests := []struct {
		in      string
		want    RoutingMode
		wantErr bool
	}{
		{"GLOBAL_ROUTING", GlobalRouting, false},
		{" source_routing ", SourceRouting, false},
		{"DYNAMIC_ROUTING", DynamicRouting, false},
		{"ONION", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRoutingMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseRoutingMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseRoutingMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if err != nil && !IsFatal(err) {
			t.Errorf("ParseRoutingMode(%q) error %v is not fatal", tt.in, err)
		}
	}
}

func TestRoutingMode_ForbidsLoops(t *testing.T) {
	if !GlobalRouting.ForbidsLoops() || !SourceRouting.ForbidsLoops() {
		t.Error("static modes must forbid loops")
	}
	if DynamicRouting.ForbidsLoops() {
		t.Error("dynamic routing permits revisits")
	}
}

func TestIsFatal_WrappedErrorClasses(t *testing.T) {
	// GIVEN wrapped errors of each class
	cfg := fmt.Errorf("loading: %w", &ConfigurationError{Key: "SEED", Err: errors.New("bad")})
	tr := &TraceReadFailure{Path: "a.pcap", Err: errors.New("eof")}
	local := fmt.Errorf("assign: %w", ErrInvalidDestination)

	// THEN only configuration and trace failures abort the simulation
	if !IsFatal(cfg) || !IsFatal(tr) {
		t.Error("configuration and trace errors must be fatal")
	}
	if IsFatal(local) || IsFatal(ErrCapacityExceeded) {
		t.Error("local errors must not be fatal")
	}
	if !errors.Is(local, ErrInvalidDestination) {
		t.Error("wrapped sentinel lost")
	}
}
