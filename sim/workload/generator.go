package workload

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/inference-sim/mixnet-sim/sim"
)

// Send is one message a client injects into the network.
type Send struct {
	Time        int64     // injection tick
	Size        int       // payload bytes
	Session     string    // route cache key within the client
	Destination sim.MixID // exit mix
}

// GenerateClient creates the send schedule of a single client.
// Deterministic given the same spec, RNG state and exits.
// exits lists the exit mixes a client may address when spec.Destinations is empty.
// Returns sends sorted by Time.
func GenerateClient(spec ClientSpec, rng *rand.Rand, horizon int64, exits []sim.MixID) ([]Send, error) {
	if horizon <= 0 {
		return nil, nil
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client spec: %w", err)
	}
	sizes, err := NewSizeSampler(spec.Size)
	if err != nil {
		return nil, fmt.Errorf("client %q size distribution: %w", spec.ID, err)
	}
	gaps, err := NewSendGaps(spec.Arrival, spec.Rate)
	if err != nil {
		return nil, fmt.Errorf("client %q: %w", spec.ID, err)
	}

	destinations := exits
	if len(spec.Destinations) > 0 {
		destinations = make([]sim.MixID, len(spec.Destinations))
		for i, d := range spec.Destinations {
			destinations[i] = sim.MixID(d)
		}
	}
	if len(destinations) == 0 {
		return nil, fmt.Errorf("client %q has no destination mix", spec.ID)
	}

	// Each session is bound to one exit for its lifetime
	sessions := spec.Sessions
	if sessions <= 0 {
		sessions = 1
	}
	sessionDest := make([]sim.MixID, sessions)
	for i := range sessionDest {
		sessionDest[i] = destinations[rng.Intn(len(destinations))]
	}

	end := horizon
	if spec.StopSeconds > 0 {
		if stop := sim.Seconds(spec.StopSeconds); stop < end {
			end = stop
		}
	}

	var sends []Send
	currentTime := sim.Seconds(spec.StartSeconds)
	for {
		currentTime += gaps.Next(rng)
		if currentTime >= end {
			break
		}
		if spec.MaxMessages > 0 && len(sends) >= spec.MaxMessages {
			break
		}
		session := 0
		if sessions > 1 {
			session = rng.Intn(sessions)
		}
		sends = append(sends, Send{
			Time:        currentTime,
			Size:        sizes.Sample(rng),
			Session:     fmt.Sprintf("s%d", session),
			Destination: sessionDest[session],
		})
	}
	return sends, nil
}

// ClientSends pairs a client with its send schedule.
type ClientSends struct {
	Client sim.Pseudonym
	Sends  []Send
}

// Generate expands and generates every client spec. Each client draws from its
// own partitioned RNG stream, so adding a client never perturbs the others.
// Returns clients sorted by ID.
func Generate(specs []ClientSpec, rng *sim.PartitionedRNG, horizon int64, exits []sim.MixID) ([]ClientSends, error) {
	var out []ClientSends
	seen := make(map[string]bool)
	for _, base := range specs {
		for _, spec := range base.Expand() {
			if seen[spec.ID] {
				return nil, fmt.Errorf("duplicate client id %q", spec.ID)
			}
			seen[spec.ID] = true
			sends, err := GenerateClient(spec, rng.For(sim.ClientStream(spec.ID)), horizon, exits)
			if err != nil {
				return nil, err
			}
			out = append(out, ClientSends{Client: sim.Pseudonym(spec.ID), Sends: sends})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out, nil
}
