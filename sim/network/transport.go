package network

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/mixnet-sim/sim"
	"github.com/inference-sim/mixnet-sim/sim/mix"
	"github.com/inference-sim/mixnet-sim/sim/routing"
	"github.com/inference-sim/mixnet-sim/sim/stats"
	"github.com/inference-sim/mixnet-sim/sim/workload"
)

// scheduleSend chains the sends of one client: each injection schedules the next.
func (n *Network) scheduleSend(client *routing.ClientState, sends []workload.Send, i int) {
	if i >= len(sends) || sends[i].Time > n.sched.Horizon() {
		return
	}
	n.sched.ScheduleAt(sends[i].Time, func(now int64) {
		n.inject(client, sends[i], now)
		n.scheduleSend(client, sends, i+1)
	})
}

// inject creates a request, assigns its route and sends it to the entry mix.
func (n *Network) inject(client *routing.ClientState, send workload.Send, now int64) {
	n.msgSeq++
	size := send.Size
	if size > n.cfg.Mixes.MaxMessageSize {
		size = n.cfg.Mixes.MaxMessageSize
	}
	if size < 1 {
		size = 1
	}
	msg := &sim.Message{
		ID:          fmt.Sprintf("%s-%d", client.ID, n.msgSeq),
		Kind:        sim.KindRequest,
		Payload:     make([]byte, size),
		Source:      client.ID,
		Recipient:   sim.Pseudonym(fmt.Sprintf("recipient@%d", send.Destination)),
		Destination: send.Destination,
		Session:     send.Session,
		NextHop:     sim.NoHop,
		Stage:       sim.StageCreated,
		CreatedAt:   now,
	}
	entity := stats.ClientEntity(client.ID)
	n.counters.Injected++
	n.recorder.Count(stats.MessagesSent, entity, now)

	route, err := n.engine.AssignRoute(msg, client)
	if err != nil {
		n.counters.RouteFailures++
		n.recorder.Count(stats.RouteFailures, entity, now)
		n.recorder.Count(stats.RouteFailures, stats.Global, now)
		if errors.Is(err, sim.ErrInvalidDestination) {
			logrus.Debugf("[tick %07d] %s: %v", now, msg.ID, err)
		} else {
			logrus.Warnf("[tick %07d] %s: route assignment failed: %v", now, msg.ID, err)
		}
		msg.Stage = sim.StageDropped
		return
	}
	msg.Route = route
	msg.NextHop = route.Entry()
	n.transmit(msg, sim.NoHop, route.Entry())
}

// linkDelay returns the latency of one transmission.
func (n *Network) linkDelay() int64 {
	d := sim.Millis(n.cfg.Link.LatencyMs)
	if j := n.cfg.Link.JitterMs; j > 0 {
		d += sim.Millis(n.linkRNG.Float64() * j)
	}
	return d
}

// transmit sends msg from mix `from` (sim.NoHop for a client) to mix `to`.
func (n *Network) transmit(msg *sim.Message, from, to sim.MixID) {
	sentAt := n.sched.Now()
	if from != sim.NoHop {
		n.counters.Forwarded++
	}
	n.sched.ScheduleAfter(n.linkDelay(), func(now int64) {
		if from != sim.NoHop {
			n.recorder.Record(stats.HopLatency, stats.MixEntity(to), now, float64(now-sentAt))
		}
		n.arrive(msg, to)
	})
}

// arrive hands msg to mix id, parking it when the lane is full.
func (n *Network) arrive(msg *sim.Message, id sim.MixID) {
	nd := n.nodes[id]
	msg.Visited = append(msg.Visited, id)
	msg.HopIndex = len(msg.Visited) - 1
	dir := mix.DirectionOf(msg)
	if len(nd.backlog[dir]) > 0 || nd.Pipeline.Remaining(dir) == 0 {
		n.park(nd, dir, msg)
		return
	}
	n.enqueue(nd, dir, msg)
}

func (n *Network) park(nd *node, dir mix.Direction, msg *sim.Message) {
	nd.backlog[dir] = append(nd.backlog[dir], msg)
	n.counters.Backpressured++
	n.recorder.Count(stats.BackpressureEvents, stats.MixEntity(nd.ID), n.sched.Now())
	logrus.Debugf("[tick %07d] mix %d %s lane full, %d parked", n.sched.Now(), nd.ID, dir, len(nd.backlog[dir]))
}

func (n *Network) enqueue(nd *node, dir mix.Direction, msg *sim.Message) {
	now := n.sched.Now()
	n.recorder.Record(stats.QueueLength, stats.MixEntity(nd.ID), now, float64(nd.QueueLength()+1))
	if err := nd.Pipeline.Add(dir, msg); err != nil {
		// Capacity was checked; keep the message rather than lose it.
		logrus.Warnf("[tick %07d] mix %d: %v", now, nd.ID, err)
		n.park(nd, dir, msg)
	}
}

// pump moves parked messages into the pipeline while capacity lasts.
func (n *Network) pump(nd *node, dir mix.Direction) {
	if nd.pumping[dir] {
		return
	}
	nd.pumping[dir] = true
	defer func() { nd.pumping[dir] = false }()
	for len(nd.backlog[dir]) > 0 && nd.Pipeline.Remaining(dir) > 0 {
		msg := nd.backlog[dir][0]
		nd.backlog[dir][0] = nil
		nd.backlog[dir] = nd.backlog[dir][1:]
		n.enqueue(nd, dir, msg)
	}
}

// drain empties the processed queue of lane dir and forwards every message.
func (n *Network) drain(nd *node, dir mix.Direction) {
	for {
		msg, err := nd.Pipeline.Get(dir)
		if errors.Is(err, sim.ErrNoMessageReady) {
			return
		}
		now := n.sched.Now()
		entity := stats.MixEntity(nd.ID)
		if !msg.Dummy {
			n.recorder.Record(stats.QueueDelay, entity, now, float64(msg.ProcessedAt-msg.EnqueuedAt))
		}
		msg.Stage = sim.StageSent
		n.recorder.Count(stats.MessagesSent, entity, now)
		n.forward(nd.ID, msg)
	}
}

func (n *Network) forward(at sim.MixID, msg *sim.Message) {
	next := n.engine.NextHop(msg, at)
	msg.NextHop = next
	if next == sim.NoHop {
		n.terminus(at, msg)
		return
	}
	n.transmit(msg, at, next)
}

// terminus handles a message that reached the end of its path at mix `at`.
func (n *Network) terminus(at sim.MixID, msg *sim.Message) {
	now := n.sched.Now()
	switch {
	case msg.Dummy:
		msg.Stage = sim.StageDropped
		n.counters.DummiesDropped++
		n.recorder.Count(stats.DummyDropped, stats.MixEntity(at), now)
	case msg.IsReply():
		n.deliverReply(msg)
	default:
		msg.Stage = sim.StageDelivered
		n.counters.Delivered++
		client := stats.ClientEntity(msg.Source)
		latency := float64(now - msg.CreatedAt)
		n.recorder.Record(stats.EndToEndLatency, client, now, latency)
		n.recorder.Record(stats.EndToEndLatency, stats.Global, now, latency)
		n.recorder.Record(stats.DeliveredBytes, client, now, float64(msg.Size()))
		logrus.Debugf("[tick %07d] %s delivered at mix %d after %d hops", now, msg.ID, at, len(msg.Visited))
		if n.cfg.Replies.Enabled {
			n.spawnReply(at, msg)
		}
	}
}

// spawnReply answers a delivered request along the reverse of its path.
func (n *Network) spawnReply(at sim.MixID, req *sim.Message) {
	route, err := n.engine.ReplyRoute(req)
	if err != nil {
		logrus.Warnf("[tick %07d] no reply for %s: %v", n.sched.Now(), req.ID, err)
		return
	}
	n.pending[req.ID] = req.CreatedAt
	reply := &sim.Message{
		ID:          req.ID + "-reply",
		Kind:        sim.KindReply,
		Payload:     make([]byte, n.cfg.Replies.Size),
		Source:      req.Recipient,
		Recipient:   req.Source,
		Destination: route.Exit(),
		Session:     req.Session,
		Route:       route,
		NextHop:     sim.NoHop,
		Stage:       sim.StageCreated,
		CreatedAt:   n.sched.Now(),
		RequestID:   req.ID,
	}
	n.arrive(reply, at)
}

// deliverReply sends a reply from its entry mix back to the client.
func (n *Network) deliverReply(reply *sim.Message) {
	n.sched.ScheduleAfter(n.linkDelay(), func(now int64) {
		reply.Stage = sim.StageDelivered
		n.counters.RepliesDelivered++
		injected, ok := n.pending[reply.RequestID]
		if !ok {
			return
		}
		delete(n.pending, reply.RequestID)
		rtt := float64(now - injected)
		n.recorder.Record(stats.RoundTripTime, stats.ClientEntity(reply.Recipient), now, rtt)
		n.recorder.Record(stats.RoundTripTime, stats.Global, now, rtt)
	})
}
