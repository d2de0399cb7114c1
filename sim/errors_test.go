package sim

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"configuration", &ConfigurationError{Key: RoutingModeKey, Value: "X", Err: errors.New("unknown")}, true},
		{"wrapped trace failure", fmt.Errorf("run: %w", &TraceReadFailure{Path: "a.pcap", Err: errors.New("eof")}), true},
		{"invalid destination", fmt.Errorf("msg 1: %w", ErrInvalidDestination), false},
		{"capacity", ErrCapacityExceeded, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestConfigurationError_Message(t *testing.T) {
	err := &ConfigurationError{Key: "MIX_COUNT", Value: "0", Err: errors.New("must be positive")}
	want := `configuration error: MIX_COUNT="0": must be positive`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(&ConfigurationError{Err: ErrCapacityExceeded}, ErrCapacityExceeded) {
		t.Error("ConfigurationError must unwrap to its cause")
	}
}

func TestMessage_SizeAndKind(t *testing.T) {
	msg := &Message{ID: "m1", Kind: KindReply, Payload: make([]byte, 64)}
	if msg.Size() != 64 {
		t.Errorf("Size() = %d, want 64", msg.Size())
	}
	if !msg.IsReply() {
		t.Error("reply message must report IsReply")
	}
}
