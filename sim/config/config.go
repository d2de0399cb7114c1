// Package config loads and validates the parameters of a simulation run from
// YAML, TOML or property-style KEY=VALUE files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/mixnet-sim/sim"
	"github.com/inference-sim/mixnet-sim/sim/flow"
	"github.com/inference-sim/mixnet-sim/sim/mix"
	"github.com/inference-sim/mixnet-sim/sim/routing"
	"github.com/inference-sim/mixnet-sim/sim/trace"
	"github.com/inference-sim/mixnet-sim/sim/workload"
)

// Config is the full parameter set of one simulation run.
type Config struct {
	Seed           int64         `yaml:"seed" toml:"seed"`
	HorizonSeconds float64       `yaml:"horizon_seconds" toml:"horizon_seconds"`
	Routing        RoutingConfig `yaml:"routing" toml:"routing"`
	Mixes          MixConfig     `yaml:"mixes" toml:"mixes"`
	Link           LinkConfig    `yaml:"link" toml:"link"`
	Replies        ReplyConfig   `yaml:"replies" toml:"replies"`
	Traffic        TrafficConfig `yaml:"traffic" toml:"traffic"`
	TraceLevel     string        `yaml:"trace_level,omitempty" toml:"trace_level"`
}

// RoutingConfig selects the routing mode and its parameters.
type RoutingConfig struct {
	Mode             string             `yaml:"mode" toml:"mode"`
	PathLength       int                `yaml:"path_length,omitempty" toml:"path_length"`
	NextHopPolicy    string             `yaml:"next_hop_policy,omitempty" toml:"next_hop_policy"`
	Weights          map[string]float64 `yaml:"weights,omitempty" toml:"weights"` // mix id -> weight
	Cascades         [][]int            `yaml:"cascades,omitempty" toml:"cascades"`
	CascadeSelection string             `yaml:"cascade_selection,omitempty" toml:"cascade_selection"`
}

// MixConfig describes the mix nodes. All nodes share one configuration.
type MixConfig struct {
	Count          int     `yaml:"count" toml:"count"`
	QueueCapacity  int     `yaml:"queue_capacity" toml:"queue_capacity"`
	MaxMessageSize int     `yaml:"max_message_size" toml:"max_message_size"`
	Strategy       string  `yaml:"strategy" toml:"strategy"`
	BatchSize      int     `yaml:"batch_size,omitempty" toml:"batch_size"`
	BatchInterval  float64 `yaml:"batch_interval_ms,omitempty" toml:"batch_interval_ms"`
	PadBatches     bool    `yaml:"pad_batches,omitempty" toml:"pad_batches"`
	MeanDelay      float64 `yaml:"mean_delay_ms,omitempty" toml:"mean_delay_ms"`
	Recoder        string  `yaml:"recoder,omitempty" toml:"recoder"`
}

// LinkConfig models the delay between any two endpoints.
type LinkConfig struct {
	LatencyMs float64 `yaml:"latency_ms" toml:"latency_ms"`
	JitterMs  float64 `yaml:"jitter_ms,omitempty" toml:"jitter_ms"`
}

// ReplyConfig controls whether recipients answer delivered requests.
type ReplyConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Size    int  `yaml:"size,omitempty" toml:"size"`
}

// TrafficConfig selects synthetic clients or a trace folder to replay.
// When Dir is set, Clients is ignored.
type TrafficConfig struct {
	Clients       []workload.ClientSpec `yaml:"clients,omitempty" toml:"clients"`
	Dir           string                `yaml:"trace_dir,omitempty" toml:"trace_dir"`
	FlowFilters   []string              `yaml:"flow_filters,omitempty" toml:"flow_filters"`
	LocalPrefixes []string              `yaml:"local_prefixes,omitempty" toml:"local_prefixes"`
}

// Default returns a runnable configuration: three mixes forming one cascade,
// one poisson client and replies enabled.
func Default() Config {
	c := base()
	c.applyDefaults()
	return c
}

// base holds the defaults that applyDefaults cannot infer from zero values.
func base() Config {
	return Config{
		Seed:           42,
		HorizonSeconds: 10,
		Link:           LinkConfig{LatencyMs: 5},
		Replies:        ReplyConfig{Enabled: true},
	}
}

// applyDefaults fills every zero-valued field that has a sensible default.
// Seed, horizon, link latency and replies keep their zero values.
func (c *Config) applyDefaults() {
	if c.Routing.Mode == "" {
		c.Routing.Mode = string(sim.GlobalRouting)
	}
	if c.Routing.PathLength == 0 {
		c.Routing.PathLength = routing.DefaultPathLength
	}
	if c.Routing.NextHopPolicy == "" {
		c.Routing.NextHopPolicy = "uniform"
	}
	if c.Routing.CascadeSelection == "" {
		c.Routing.CascadeSelection = "first"
	}
	if c.Mixes.Count == 0 {
		c.Mixes.Count = 3
	}
	if c.Mixes.QueueCapacity == 0 {
		c.Mixes.QueueCapacity = 100
	}
	if c.Mixes.MaxMessageSize == 0 {
		c.Mixes.MaxMessageSize = 2048
	}
	if c.Mixes.Strategy == "" {
		c.Mixes.Strategy = "no-delay"
	}
	if c.Mixes.Recoder == "" {
		c.Mixes.Recoder = "identity"
	}
	if c.RoutingMode() == sim.GlobalRouting && len(c.Routing.Cascades) == 0 {
		n := c.Routing.PathLength
		if n > c.Mixes.Count {
			n = c.Mixes.Count
		}
		cascade := make([]int, 0, n)
		for i := 0; i < n; i++ {
			cascade = append(cascade, i)
		}
		c.Routing.Cascades = [][]int{cascade}
	}
	if c.Replies.Size == 0 {
		c.Replies.Size = 512
		if c.Replies.Size > c.Mixes.MaxMessageSize {
			c.Replies.Size = c.Mixes.MaxMessageSize
		}
	}
	if c.Traffic.Dir == "" && len(c.Traffic.Clients) == 0 {
		c.Traffic.Clients = []workload.ClientSpec{defaultClient()}
	}
	if c.TraceLevel == "" {
		c.TraceLevel = string(trace.LevelNone)
	}
}

func defaultClient() workload.ClientSpec {
	return workload.ClientSpec{
		ID:      "client",
		Rate:    10,
		Arrival: workload.ArrivalSpec{Process: "poisson"},
		Size:    workload.DistSpec{Type: "constant", Params: map[string]float64{"value": 512}},
	}
}

// Load reads a configuration file, dispatching on its extension.
// The result is validated; any problem is returned as a *sim.ConfigurationError.
func Load(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = loadYAML(path)
	case ".toml":
		cfg, err = loadTOML(path)
	case ".properties", ".env", ".conf":
		cfg, err = loadProperties(path)
	default:
		return nil, &sim.ConfigurationError{Key: "config", Value: path, Err: errors.New("unsupported config file extension")}
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML uses strict parsing: unrecognized keys (typos) are rejected.
func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := base()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, &sim.ConfigurationError{Key: "config", Value: path, Err: err}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func loadTOML(path string) (*Config, error) {
	cfg := base()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, &sim.ConfigurationError{Key: "config", Value: path, Err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, &sim.ConfigurationError{Key: "config", Value: path, Err: fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Horizon returns the run horizon in ticks; 0 means unbounded.
func (c *Config) Horizon() int64 {
	return sim.Seconds(c.HorizonSeconds)
}

// RoutingMode returns the parsed routing mode, or "" if it is invalid.
func (c *Config) RoutingMode() sim.RoutingMode {
	mode, _ := sim.ParseRoutingMode(c.Routing.Mode)
	return mode
}

// RoutingEngineConfig converts the routing section for routing.NewEngine.
func (c *Config) RoutingEngineConfig() (routing.Config, error) {
	cascades := make([]sim.MixList, 0, len(c.Routing.Cascades))
	for i, ids := range c.Routing.Cascades {
		hops := make([]sim.MixID, len(ids))
		for j, id := range ids {
			hops[j] = sim.MixID(id)
		}
		l, err := sim.NewMixList(hops...)
		if err != nil {
			return routing.Config{}, fmt.Errorf("cascade %d: %w", i, err)
		}
		cascades = append(cascades, l)
	}
	weights, err := c.mixWeights()
	if err != nil {
		return routing.Config{}, err
	}
	return routing.Config{
		Mode:             c.RoutingMode(),
		Cascades:         cascades,
		CascadeSelection: c.Routing.CascadeSelection,
		PathLength:       c.Routing.PathLength,
		NextHopPolicy:    c.Routing.NextHopPolicy,
		Weights:          weights,
	}, nil
}

func (c *Config) mixWeights() (map[sim.MixID]float64, error) {
	if len(c.Routing.Weights) == 0 {
		return nil, nil
	}
	out := make(map[sim.MixID]float64, len(c.Routing.Weights))
	for k, w := range c.Routing.Weights {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("weight key %q is not a mix id", k)
		}
		out[sim.MixID(id)] = w
	}
	return out, nil
}

// StrategyConfig converts the mix section for mix.NewStrategy.
func (c *Config) StrategyConfig() mix.StrategyConfig {
	return mix.StrategyConfig{
		Name:      c.Mixes.Strategy,
		BatchSize: c.Mixes.BatchSize,
		Interval:  sim.Millis(c.Mixes.BatchInterval),
		Pad:       c.Mixes.PadBatches,
		MeanDelay: sim.Millis(c.Mixes.MeanDelay),
	}
}

// Exits returns the exit mixes clients may address: cascade exits in global
// routing, every mix otherwise.
func (c *Config) Exits() []sim.MixID {
	seen := make(map[sim.MixID]bool)
	var out []sim.MixID
	if c.RoutingMode() == sim.GlobalRouting {
		for _, cascade := range c.Routing.Cascades {
			if len(cascade) == 0 {
				continue
			}
			id := sim.MixID(cascade[len(cascade)-1])
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	} else {
		for i := 0; i < c.Mixes.Count; i++ {
			out = append(out, sim.MixID(i))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WithSeed returns a copy of c with a different seed.
func (c Config) WithSeed(seed int64) Config {
	c.Seed = seed
	return c
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(key, value string, err error) {
		result = multierror.Append(result, &sim.ConfigurationError{Key: key, Value: value, Err: err})
	}

	mode, err := sim.ParseRoutingMode(c.Routing.Mode)
	if err != nil {
		result = multierror.Append(result, err)
	}
	if c.HorizonSeconds < 0 {
		add("HORIZON_SECONDS", fmtFloat(c.HorizonSeconds), errors.New("must be non-negative"))
	}
	if c.Mixes.Count < 1 {
		add("MIX_COUNT", strconv.Itoa(c.Mixes.Count), errors.New("at least one mix required"))
	}
	if c.Mixes.QueueCapacity < 1 {
		add("QUEUE_CAPACITY", strconv.Itoa(c.Mixes.QueueCapacity), errors.New("must be positive"))
	}
	if c.Mixes.MaxMessageSize < 1 {
		add("MAX_MESSAGE_SIZE", strconv.Itoa(c.Mixes.MaxMessageSize), errors.New("must be positive"))
	}
	if !mix.IsValidStrategy(c.Mixes.Strategy) {
		add("OUTPUT_STRATEGY", c.Mixes.Strategy, errors.New("unknown output strategy"))
	} else if err := mix.NewStrategy(c.StrategyConfig(), nil).Validate(c.Mixes.QueueCapacity); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Mixes.PadBatches && c.HorizonSeconds == 0 {
		add("PAD_BATCHES", "true", errors.New("padding requires a finite horizon"))
	}
	if !mix.ValidRecoders[c.Mixes.Recoder] {
		add("RECODER", c.Mixes.Recoder, errors.New("unknown recoder"))
	}
	if c.Routing.PathLength < 0 {
		add("PATH_LENGTH", strconv.Itoa(c.Routing.PathLength), errors.New("must be non-negative"))
	}
	if !routing.IsValidNextHopPolicy(c.Routing.NextHopPolicy) {
		add("NEXT_HOP_POLICY", c.Routing.NextHopPolicy, errors.New("unknown next-hop policy"))
	}
	if !routing.ValidCascadeSelections[c.Routing.CascadeSelection] {
		add("CASCADE_SELECTION", c.Routing.CascadeSelection, errors.New("unknown cascade selection"))
	}
	if _, err := c.mixWeights(); err != nil {
		add("WEIGHTS", "", err)
	}
	if mode == sim.GlobalRouting && len(c.Routing.Cascades) == 0 {
		add("CASCADES", "", errors.New("global routing requires at least one cascade"))
	}
	for i, cascade := range c.Routing.Cascades {
		value := formatCascade(cascade)
		if len(cascade) == 0 {
			add("CASCADES", value, fmt.Errorf("cascade %d is empty", i))
		}
		for _, id := range cascade {
			if id < 0 || id >= c.Mixes.Count {
				add("CASCADES", value, fmt.Errorf("cascade %d references mix %d outside [0, %d)", i, id, c.Mixes.Count))
			}
		}
	}
	if c.Link.LatencyMs < 0 || c.Link.JitterMs < 0 {
		add("LINK_LATENCY_MS", fmtFloat(c.Link.LatencyMs), errors.New("latency and jitter must be non-negative"))
	}
	if c.Replies.Enabled && (c.Replies.Size < 1 || c.Replies.Size > c.Mixes.MaxMessageSize) {
		add("REPLY_SIZE", strconv.Itoa(c.Replies.Size), fmt.Errorf("must be in [1, %d]", c.Mixes.MaxMessageSize))
	}
	if _, err := trace.ParseLevel(c.TraceLevel); err != nil {
		add("TRACE_LEVEL", c.TraceLevel, err)
	}
	if _, err := flow.ParseChain(c.Traffic.FlowFilters); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := flow.ParsePrefixes(c.Traffic.LocalPrefixes); err != nil {
		add("LOCAL_PREFIXES", strings.Join(c.Traffic.LocalPrefixes, ","), err)
	}
	if c.Traffic.Dir == "" {
		if len(c.Traffic.Clients) == 0 {
			add("TRACE_DIR", "", errors.New("either clients or a trace directory is required"))
		}
		for i := range c.Traffic.Clients {
			cl := c.Traffic.Clients[i]
			if err := cl.Validate(); err != nil {
				add("CLIENTS", cl.ID, err)
			} else if c.HorizonSeconds == 0 && cl.StopSeconds == 0 && cl.MaxMessages == 0 {
				add("CLIENTS", cl.ID, errors.New("unbounded traffic needs a horizon, stop_seconds or max_messages"))
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return &sim.ConfigurationError{Err: err}
	}
	return nil
}

func formatCascade(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
