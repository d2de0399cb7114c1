// Package routing decides which mixes a message traverses. One Engine exists per
// replication; it holds the routing mode, the published cascades, the info
// service and the per-session route cache.
package routing

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/mixnet-sim/sim"
	"github.com/inference-sim/mixnet-sim/sim/trace"
)

// DefaultPathLength is the number of mixes on a source or dynamic route when
// the configuration leaves it unset.
const DefaultPathLength = 3

// ValidCascadeSelections is the set of recognized cascade selection rules.
// Empty string defaults to first.
var ValidCascadeSelections = map[string]bool{"": true, "first": true, "random": true, "hash": true}

// Config holds the routing parameters of one run.
type Config struct {
	Mode             sim.RoutingMode
	Cascades         []sim.MixList         // published cascades (global routing)
	CascadeSelection string                // first, random or hash
	PathLength       int                   // mixes per route in source/dynamic routing
	NextHopPolicy    string                // dynamic routing policy name
	Weights          map[sim.MixID]float64 // per-mix weights for the weighted policy
}

// ClientState is the routing-relevant state of one client.
type ClientState struct {
	ID         sim.Pseudonym
	Pinned     bool        // client is bound to Cascades[Cascade] (global routing)
	Cascade    int         // index into the published cascades when Pinned
	Route      sim.MixList // client-owned route (source routing); empty = build on demand
	Discovered []sim.MixID // node set the client knows about (source routing); nil = all known
}

type routeKey struct {
	client      sim.Pseudonym
	session     string
	destination sim.MixID
}

// modeRouter is the per-mode routing behavior selected once in NewEngine.
type modeRouter interface {
	assign(e *Engine, msg *sim.Message, client *ClientState) (sim.MixList, string, error)
	next(e *Engine, msg *sim.Message, current sim.MixID) (sim.MixID, string)
}

// Engine assigns routes and answers next-hop queries.
//
// Lifecycle: NewEngine, then register mixes through InfoService, optionally
// SetLoadView and SetTrace, then Initialize. AssignRoute and NextHop panic
// before Initialize.
//
// Thread-safety: NOT thread-safe. Owned by one replication.
type Engine struct {
	cfg         Config
	router      modeRouter
	info        *InfoService
	policy      NextHopPolicy
	rng         *rand.Rand
	routes      map[routeKey]sim.MixList
	trace       *trace.Log
	clock       sim.Clock
	initialized bool
}

// NewEngine validates cfg and creates an Engine for its routing mode.
// rng drives cascade selection, source route construction and the next-hop policy.
func NewEngine(cfg Config, rng *rand.Rand) (*Engine, error) {
	if !sim.ValidRoutingModes[cfg.Mode] {
		return nil, &sim.ConfigurationError{Key: sim.RoutingModeKey, Value: string(cfg.Mode), Err: fmt.Errorf("unknown routing mode")}
	}
	if !ValidCascadeSelections[cfg.CascadeSelection] {
		return nil, &sim.ConfigurationError{Key: "CASCADE_SELECTION", Value: cfg.CascadeSelection, Err: fmt.Errorf("unknown cascade selection")}
	}
	if !IsValidNextHopPolicy(cfg.NextHopPolicy) {
		return nil, &sim.ConfigurationError{Key: "NEXT_HOP_POLICY", Value: cfg.NextHopPolicy, Err: fmt.Errorf("unknown next-hop policy")}
	}
	if cfg.PathLength == 0 {
		cfg.PathLength = DefaultPathLength
	}
	if cfg.PathLength < 1 {
		return nil, &sim.ConfigurationError{Key: "PATH_LENGTH", Value: fmt.Sprint(cfg.PathLength), Err: fmt.Errorf("must be >= 1")}
	}

	e := &Engine{
		cfg:    cfg,
		info:   NewInfoService(),
		rng:    rng,
		routes: make(map[routeKey]sim.MixList),
	}
	switch cfg.Mode {
	case sim.GlobalRouting:
		if len(cfg.Cascades) == 0 {
			return nil, &sim.ConfigurationError{Key: "CASCADES", Err: fmt.Errorf("global routing needs at least one cascade")}
		}
		for i, c := range cfg.Cascades {
			if c.IsEmpty() {
				return nil, &sim.ConfigurationError{Key: "CASCADES", Err: fmt.Errorf("cascade %d is empty", i)}
			}
			if c.HasLoop() {
				return nil, &sim.ConfigurationError{Key: "CASCADES", Value: c.String(), Err: fmt.Errorf("cascade %d revisits a mix", i)}
			}
		}
		e.router = globalRouter{}
	case sim.SourceRouting:
		e.router = sourceRouter{}
	case sim.DynamicRouting:
		e.policy = NewNextHopPolicy(cfg.NextHopPolicy, cfg.Weights, rng)
		e.router = dynamicRouter{}
	}
	return e, nil
}

// Mode returns the routing mode of the run.
func (e *Engine) Mode() sim.RoutingMode { return e.cfg.Mode }

// PathLength returns the effective path length for source and dynamic routing.
func (e *Engine) PathLength() int { return e.cfg.PathLength }

// Cascades returns the published cascades.
func (e *Engine) Cascades() []sim.MixList {
	out := make([]sim.MixList, len(e.cfg.Cascades))
	copy(out, e.cfg.Cascades)
	return out
}

// InfoService returns the service that hands out mix identifiers.
func (e *Engine) InfoService() *InfoService { return e.info }

// Policy returns the next-hop policy, or nil outside dynamic routing.
func (e *Engine) Policy() NextHopPolicy { return e.policy }

// SetLoadView wires the load view into state-dependent policies.
func (e *Engine) SetLoadView(v LoadView) {
	if la, ok := e.policy.(loadAware); ok {
		la.setLoadView(v)
	}
}

// SetTrace enables decision recording. clock stamps each record.
func (e *Engine) SetTrace(t *trace.Log, clock sim.Clock) {
	e.trace = t
	e.clock = clock
}

// Initialize checks the published cascades against the registered mixes and
// unlocks AssignRoute and NextHop.
func (e *Engine) Initialize() error {
	for i, c := range e.cfg.Cascades {
		for _, id := range c.IDs() {
			if !e.info.IsKnown(id) {
				return &sim.ConfigurationError{Key: "CASCADES", Value: c.String(), Err: fmt.Errorf("cascade %d references unknown mix %d", i, id)}
			}
		}
	}
	if ll, ok := e.policy.(*LeastLoadedPolicy); ok && ll.view == nil {
		return fmt.Errorf("least-loaded policy requires a load view")
	}
	e.initialized = true
	logrus.Debugf("routing engine initialized: mode=%s mixes=%d cascades=%d", e.cfg.Mode, len(e.info.Known()), len(e.cfg.Cascades))
	return nil
}

// AssignRoute returns the route msg must follow. In dynamic routing the result
// holds only the entry mix. Errors wrapping sim.ErrInvalidDestination are local
// to the message; the run continues.
func (e *Engine) AssignRoute(msg *sim.Message, client *ClientState) (sim.MixList, error) {
	if !e.initialized {
		panic("Engine.AssignRoute called before Initialize")
	}
	key := routeKey{client: client.ID, session: msg.Session, destination: msg.Destination}
	if route, ok := e.routes[key]; ok {
		e.recordAssignment(msg, client, route, nil, "cached")
		return route, nil
	}
	if !e.info.IsKnown(msg.Destination) {
		err := fmt.Errorf("destination %d is not a known mix: %w", msg.Destination, sim.ErrInvalidDestination)
		e.recordAssignment(msg, client, sim.MixList{}, err, "")
		return sim.MixList{}, err
	}
	route, reason, err := e.router.assign(e, msg, client)
	e.recordAssignment(msg, client, route, err, reason)
	if err != nil {
		return sim.MixList{}, err
	}
	e.routes[key] = route
	return route, nil
}

// NextHop returns the mix msg must be forwarded to after current, or sim.NoHop
// when current is the terminus and the message is delivered locally. Replies
// end at the last mix of their route, which may pass the entry mix earlier.
func (e *Engine) NextHop(msg *sim.Message, current sim.MixID) sim.MixID {
	if !e.initialized {
		panic("Engine.NextHop called before Initialize")
	}
	var next sim.MixID
	var reason string
	switch {
	case msg.IsReply():
		next, reason = staticNext(msg, current)
	case current == msg.Destination:
		next, reason = sim.NoHop, "terminus"
	default:
		next, reason = e.router.next(e, msg, current)
	}
	if e.trace.RecordsHops() {
		e.trace.RecordHop(trace.HopRecord{
			MessageID: msg.ID,
			Clock:     e.now(),
			AtMix:     int(current),
			NextMix:   int(next),
			Reply:     msg.IsReply(),
			Reason:    reason,
		})
	}
	return next
}

// ReplyRoute returns the reverse path for a reply to req: the mixes the request
// traversed, last first.
func (e *Engine) ReplyRoute(req *sim.Message) (sim.MixList, error) {
	if len(req.Visited) == 0 {
		return sim.MixList{}, fmt.Errorf("request %s has no recorded path", req.ID)
	}
	path, err := sim.NewMixList(req.Visited...)
	if err != nil {
		return sim.MixList{}, err
	}
	return path.Reverse(), nil
}

// Forget drops the cached route of a finished session.
func (e *Engine) Forget(client sim.Pseudonym, session string, destination sim.MixID) {
	delete(e.routes, routeKey{client: client, session: session, destination: destination})
}

func (e *Engine) now() int64 {
	if e.clock == nil {
		return 0
	}
	return e.clock.Now()
}

func (e *Engine) recordAssignment(msg *sim.Message, client *ClientState, route sim.MixList, err error, reason string) {
	if !e.trace.RecordsRoutes() {
		return
	}
	rec := trace.AssignmentRecord{
		MessageID: msg.ID,
		Client:    string(client.ID),
		Clock:     e.now(),
		Mode:      string(e.cfg.Mode),
		Accepted:  err == nil,
		Reason:    reason,
	}
	if err != nil {
		rec.Reason = err.Error()
	} else {
		for _, id := range route.IDs() {
			rec.Route = append(rec.Route, int(id))
		}
	}
	e.trace.RecordAssignment(rec)
}

// staticNext follows a precomputed route. The message's HopIndex is trusted when
// it points at current; otherwise the first occurrence of current is used.
func staticNext(msg *sim.Message, current sim.MixID) (sim.MixID, string) {
	idx := msg.HopIndex
	if msg.Route.At(idx) != current {
		idx = msg.Route.IndexOf(current)
		if idx < 0 {
			return sim.NoHop, fmt.Sprintf("mix %d not on route %s", current, msg.Route)
		}
	}
	next := msg.Route.At(idx + 1)
	if next == sim.NoHop {
		return sim.NoHop, "end of route"
	}
	return next, fmt.Sprintf("route[%d]", idx+1)
}

// --- global routing ---

type globalRouter struct{}

func (globalRouter) assign(e *Engine, msg *sim.Message, client *ClientState) (sim.MixList, string, error) {
	if client.Pinned {
		if client.Cascade < 0 || client.Cascade >= len(e.cfg.Cascades) {
			return sim.MixList{}, "", fmt.Errorf("client %s pinned to unknown cascade %d", client.ID, client.Cascade)
		}
		c := e.cfg.Cascades[client.Cascade]
		if c.Exit() != msg.Destination {
			return sim.MixList{}, "", fmt.Errorf("client %s cascade %s exits at %d, not %d: %w",
				client.ID, c, c.Exit(), msg.Destination, sim.ErrInvalidDestination)
		}
		return c, fmt.Sprintf("pinned cascade %d", client.Cascade), nil
	}
	var matching []int
	for i, c := range e.cfg.Cascades {
		if c.Exit() == msg.Destination {
			matching = append(matching, i)
		}
	}
	if len(matching) == 0 {
		return sim.MixList{}, "", fmt.Errorf("no cascade exits at %d: %w", msg.Destination, sim.ErrInvalidDestination)
	}
	var pick int
	switch e.cfg.CascadeSelection {
	case "random":
		pick = matching[e.rng.Intn(len(matching))]
	case "hash":
		h := fnv.New32a()
		h.Write([]byte(client.ID))
		pick = matching[int(h.Sum32()%uint32(len(matching)))]
	default:
		pick = matching[0]
	}
	return e.cfg.Cascades[pick], fmt.Sprintf("cascade %d (%d candidates)", pick, len(matching)), nil
}

func (globalRouter) next(_ *Engine, msg *sim.Message, current sim.MixID) (sim.MixID, string) {
	return staticNext(msg, current)
}

// --- source routing ---

type sourceRouter struct{}

func (sourceRouter) assign(e *Engine, msg *sim.Message, client *ClientState) (sim.MixList, string, error) {
	route := client.Route
	reason := "client route"
	if route.IsEmpty() {
		nodes := client.Discovered
		if nodes == nil {
			nodes = e.info.Known()
		}
		built, err := BuildSourceRoute(e.rng, nodes, e.cfg.PathLength, msg.Destination)
		if err != nil {
			return sim.MixList{}, "", fmt.Errorf("client %s: %w", client.ID, err)
		}
		route = built
		reason = "built from discovered nodes"
	}
	if err := validateRoute(route, msg.Destination, e.info.IsKnown, e.cfg.Mode.ForbidsLoops()); err != nil {
		return sim.MixList{}, "", fmt.Errorf("client %s: %w", client.ID, err)
	}
	return route, reason, nil
}

func (sourceRouter) next(_ *Engine, msg *sim.Message, current sim.MixID) (sim.MixID, string) {
	return staticNext(msg, current)
}

// --- dynamic routing ---

type dynamicRouter struct{}

func (dynamicRouter) assign(e *Engine, msg *sim.Message, _ *ClientState) (sim.MixList, string, error) {
	entry, reason := e.chooseDynamic(msg, sim.NoHop)
	route, err := sim.NewMixList(entry)
	if err != nil {
		return sim.MixList{}, "", err
	}
	return route, "entry " + reason, nil
}

func (dynamicRouter) next(e *Engine, msg *sim.Message, current sim.MixID) (sim.MixID, string) {
	return e.chooseDynamic(msg, current)
}

// chooseDynamic picks the mix after current (NoHop = choosing the entry).
// Once PathLength-1 mixes were visited the message goes to its destination.
func (e *Engine) chooseDynamic(msg *sim.Message, current sim.MixID) (sim.MixID, string) {
	if len(msg.Visited) >= e.cfg.PathLength-1 {
		return msg.Destination, "path length reached"
	}
	known := e.info.Known()
	candidates := make([]sim.MixID, 0, len(known))
	for _, id := range known {
		if id != current && id != msg.Destination {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return msg.Destination, "no intermediate candidates"
	}
	return e.policy.Choose(msg, current, candidates)
}
