package workload

import (
	"math"
	"testing"
)

func validClient() ClientSpec {
	return ClientSpec{
		ID:      "alice",
		Rate:    10,
		Arrival: ArrivalSpec{Process: "poisson"},
		Size:    DistSpec{Type: "constant", Params: map[string]float64{"value": 512}},
	}
}

func TestClientSpec_Validate(t *testing.T) {
	cv := 20.0
	tests := []struct {
		name    string
		mutate  func(c *ClientSpec)
		wantErr bool
	}{
		{"valid", func(c *ClientSpec) {}, false},
		{"empty id", func(c *ClientSpec) { c.ID = "" }, true},
		{"zero rate", func(c *ClientSpec) { c.Rate = 0 }, true},
		{"nan rate", func(c *ClientSpec) { c.Rate = math.NaN() }, true},
		{"unknown process", func(c *ClientSpec) { c.Arrival.Process = "bursty" }, true},
		{"weibull cv out of range", func(c *ClientSpec) { c.Arrival = ArrivalSpec{Process: "weibull", CV: &cv} }, true},
		{"unknown size dist", func(c *ClientSpec) { c.Size.Type = "zipf" }, true},
		{"infinite size param", func(c *ClientSpec) { c.Size.Params["value"] = math.Inf(1) }, true},
		{"negative sessions", func(c *ClientSpec) { c.Sessions = -1 }, true},
		{"negative destination", func(c *ClientSpec) { c.Destinations = []int{-2} }, true},
		{"empty window", func(c *ClientSpec) { c.StartSeconds = 5; c.StopSeconds = 5 }, true},
		{"open window", func(c *ClientSpec) { c.StartSeconds = 5 }, false},
		{"negative count", func(c *ClientSpec) { c.Count = -1 }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validClient()
			tc.mutate(&c)
			err := c.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestClientSpec_Expand(t *testing.T) {
	c := validClient()
	if got := c.Expand(); len(got) != 1 || got[0].ID != "alice" {
		t.Fatalf("Expand() = %+v", got)
	}
	c.Count = 2
	got := c.Expand()
	if len(got) != 2 || got[0].ID != "alice-0" || got[1].ID != "alice-1" || got[1].Count != 1 {
		t.Fatalf("Expand() = %+v", got)
	}
}

func TestIsValidArrivalProcess(t *testing.T) {
	for _, p := range []string{"poisson", "gamma", "weibull", "constant"} {
		if !IsValidArrivalProcess(p) {
			t.Errorf("%q should be valid", p)
		}
	}
	if IsValidArrivalProcess("") {
		t.Error("empty process should be invalid")
	}
}
