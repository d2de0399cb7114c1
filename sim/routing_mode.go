package sim

import (
	"fmt"
	"strings"
)

// RoutingMode selects how routes are discovered for one simulation run.
// Exactly one mode is active per run and it never changes.
type RoutingMode string

const (
	// GlobalRouting uses a network-wide fixed set of published cascades.
	GlobalRouting RoutingMode = "GLOBAL_ROUTING"
	// SourceRouting lets each client build and own its full route up front.
	SourceRouting RoutingMode = "SOURCE_ROUTING"
	// DynamicRouting lets every mix pick only the next hop.
	DynamicRouting RoutingMode = "DYNAMIC_ROUTING"
)

// ValidRoutingModes is the set of recognized routing modes.
var ValidRoutingModes = map[RoutingMode]bool{
	GlobalRouting:  true,
	SourceRouting:  true,
	DynamicRouting: true,
}

// RoutingModeKey is the property key that selects the routing mode.
const RoutingModeKey = "GLOBAL_ROUTING_MODE"

// ParseRoutingMode converts a configuration value into a RoutingMode.
// An unrecognized value is a ConfigurationError; there is no fallback.
func ParseRoutingMode(s string) (RoutingMode, error) {
	mode := RoutingMode(strings.ToUpper(strings.TrimSpace(s)))
	if !ValidRoutingModes[mode] {
		return "", &ConfigurationError{
			Key:   RoutingModeKey,
			Value: s,
			Err:   fmt.Errorf("unknown routing mode, want one of %s, %s, %s", GlobalRouting, SourceRouting, DynamicRouting),
		}
	}
	return mode, nil
}

// ForbidsLoops reports whether routes in this mode must not revisit a mix.
func (m RoutingMode) ForbidsLoops() bool {
	return m == GlobalRouting || m == SourceRouting
}
