package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/inference-sim/mixnet-sim/sim"
	"github.com/inference-sim/mixnet-sim/sim/workload"
)

// propertySetter applies one KEY=VALUE pair to a Config.
type propertySetter func(c *Config, v string) error

// clientKeys configure the single synthetic client of a property file.
var clientKeys = map[string]bool{
	"CLIENT_COUNT": true, "CLIENT_RATE": true, "CLIENT_ARRIVAL": true,
	"CLIENT_CV": true, "CLIENT_SESSIONS": true, "MESSAGE_SIZE": true,
}

var properties = map[string]propertySetter{
	sim.RoutingModeKey: func(c *Config, v string) error {
		mode, err := sim.ParseRoutingMode(v)
		if err != nil {
			return err
		}
		c.Routing.Mode = string(mode)
		return nil
	},
	"SEED":              int64Prop(func(c *Config) *int64 { return &c.Seed }),
	"HORIZON_SECONDS":   floatProp(func(c *Config) *float64 { return &c.HorizonSeconds }),
	"MIX_COUNT":         intProp(func(c *Config) *int { return &c.Mixes.Count }),
	"QUEUE_CAPACITY":    intProp(func(c *Config) *int { return &c.Mixes.QueueCapacity }),
	"MAX_MESSAGE_SIZE":  intProp(func(c *Config) *int { return &c.Mixes.MaxMessageSize }),
	"OUTPUT_STRATEGY":   stringProp(func(c *Config) *string { return &c.Mixes.Strategy }),
	"BATCH_SIZE":        intProp(func(c *Config) *int { return &c.Mixes.BatchSize }),
	"BATCH_INTERVAL_MS": floatProp(func(c *Config) *float64 { return &c.Mixes.BatchInterval }),
	"PAD_BATCHES":       boolProp(func(c *Config) *bool { return &c.Mixes.PadBatches }),
	"MEAN_DELAY_MS":     floatProp(func(c *Config) *float64 { return &c.Mixes.MeanDelay }),
	"RECODER":           stringProp(func(c *Config) *string { return &c.Mixes.Recoder }),
	"PATH_LENGTH":       intProp(func(c *Config) *int { return &c.Routing.PathLength }),
	"NEXT_HOP_POLICY":   stringProp(func(c *Config) *string { return &c.Routing.NextHopPolicy }),
	"CASCADE_SELECTION": stringProp(func(c *Config) *string { return &c.Routing.CascadeSelection }),
	"CASCADES": func(c *Config, v string) error {
		cascades, err := ParseCascades(v)
		if err != nil {
			return err
		}
		c.Routing.Cascades = cascades
		return nil
	},
	"WEIGHTS": func(c *Config, v string) error {
		weights, err := parseWeights(v)
		if err != nil {
			return err
		}
		c.Routing.Weights = weights
		return nil
	},
	"LINK_LATENCY_MS": floatProp(func(c *Config) *float64 { return &c.Link.LatencyMs }),
	"LINK_JITTER_MS":  floatProp(func(c *Config) *float64 { return &c.Link.JitterMs }),
	"REPLIES":         boolProp(func(c *Config) *bool { return &c.Replies.Enabled }),
	"REPLY_SIZE":      intProp(func(c *Config) *int { return &c.Replies.Size }),
	"TRACE_DIR":       stringProp(func(c *Config) *string { return &c.Traffic.Dir }),
	"FLOW_FILTERS":    listProp(func(c *Config) *[]string { return &c.Traffic.FlowFilters }),
	"LOCAL_PREFIXES":  listProp(func(c *Config) *[]string { return &c.Traffic.LocalPrefixes }),
	"TRACE_LEVEL":     stringProp(func(c *Config) *string { return &c.TraceLevel }),
}

// PropertyKeys returns every recognized property key in sorted order.
func PropertyKeys() []string {
	keys := make([]string, 0, len(properties)+len(clientKeys))
	for k := range properties {
		keys = append(keys, k)
	}
	for k := range clientKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func loadProperties(path string) (*Config, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, &sim.ConfigurationError{Key: "config", Value: path, Err: err}
	}
	return FromProperties(values)
}

// FromProperties builds a Config from KEY=VALUE pairs. GLOBAL_ROUTING_MODE is
// required; other missing keys keep their defaults. Unknown keys and malformed
// values are reported together.
func FromProperties(values map[string]string) (*Config, error) {
	cfg := base()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var result *multierror.Error
	if _, ok := values[sim.RoutingModeKey]; !ok {
		result = multierror.Append(result, &sim.ConfigurationError{Key: sim.RoutingModeKey, Err: errors.New("required property is missing")})
	}
	for _, key := range keys {
		v := strings.TrimSpace(values[key])
		if clientKeys[key] {
			continue
		}
		set, ok := properties[key]
		if !ok {
			result = multierror.Append(result, &sim.ConfigurationError{Key: key, Value: v, Err: errors.New("unknown property")})
			continue
		}
		if err := set(&cfg, v); err != nil {
			var cfgErr *sim.ConfigurationError
			if !errors.As(err, &cfgErr) {
				err = &sim.ConfigurationError{Key: key, Value: v, Err: err}
			}
			result = multierror.Append(result, err)
		}
	}
	if client, ok, err := clientFromProperties(values); err != nil {
		result = multierror.Append(result, err)
	} else if ok {
		cfg.Traffic.Clients = []workload.ClientSpec{client}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, &sim.ConfigurationError{Err: err}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func clientFromProperties(values map[string]string) (workload.ClientSpec, bool, error) {
	client := defaultClient()
	found := false
	keys := make([]string, 0, len(clientKeys))
	for k := range clientKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var result *multierror.Error
	for _, key := range keys {
		raw, ok := values[key]
		if !ok {
			continue
		}
		found = true
		v := strings.TrimSpace(raw)
		var err error
		switch key {
		case "CLIENT_COUNT":
			client.Count, err = strconv.Atoi(v)
		case "CLIENT_RATE":
			client.Rate, err = strconv.ParseFloat(v, 64)
		case "CLIENT_ARRIVAL":
			client.Arrival.Process = v
		case "CLIENT_CV":
			var cv float64
			cv, err = strconv.ParseFloat(v, 64)
			client.Arrival.CV = &cv
		case "CLIENT_SESSIONS":
			client.Sessions, err = strconv.Atoi(v)
		case "MESSAGE_SIZE":
			var size float64
			size, err = strconv.ParseFloat(v, 64)
			client.Size.Params = map[string]float64{"value": size}
		}
		if err != nil {
			result = multierror.Append(result, &sim.ConfigurationError{Key: key, Value: v, Err: err})
		}
	}
	return client, found, result.ErrorOrNil()
}

// ParseCascades parses "0,1,2;3,4,5" into one id list per cascade.
func ParseCascades(s string) ([][]int, error) {
	var out [][]int
	for i, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var cascade []int
		for _, f := range strings.Split(part, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return nil, fmt.Errorf("cascade %d: %q is not a mix id", i, f)
			}
			cascade = append(cascade, id)
		}
		out = append(out, cascade)
	}
	return out, nil
}

// parseWeights parses "0:1.5,2:0.5" into mix id -> weight.
func parseWeights(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, w, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("weight %q is not id:weight", pair)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
		if err != nil {
			return nil, fmt.Errorf("weight %q: %w", pair, err)
		}
		out[strings.TrimSpace(id)] = weight
	}
	return out, nil
}

func stringProp(field func(*Config) *string) propertySetter {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intProp(field func(*Config) *int) propertySetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func int64Prop(field func(*Config) *int64) propertySetter {
	return func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatProp(field func(*Config) *float64) propertySetter {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolProp(field func(*Config) *bool) propertySetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func listProp(field func(*Config) *[]string) propertySetter {
	return func(c *Config, v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*field(c) = out
		return nil
	}
}
