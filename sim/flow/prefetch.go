package flow

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
)

// Prefetcher reads trace files on a background goroutine and hands packets to
// the consumer over a buffered channel.
type Prefetcher struct {
	packets chan Packet
	done    chan struct{}
	err     error
	bytes   int64
}

// Prefetch starts reading readers one after another. The channel returned by
// Packets is closed once every reader is exhausted, a reader fails, or ctx is
// done; Err reports why afterwards. Readers are closed by the prefetcher.
func Prefetch(ctx context.Context, readers []PacketReader, buffer int) *Prefetcher {
	if buffer < 0 {
		buffer = 0
	}
	p := &Prefetcher{
		packets: make(chan Packet, buffer),
		done:    make(chan struct{}),
	}
	go p.run(ctx, readers)
	return p
}

func (p *Prefetcher) run(ctx context.Context, readers []PacketReader) {
	defer close(p.done)
	defer close(p.packets)
	defer closeAll(readers)
	for _, r := range readers {
		n := 0
		for {
			if err := ctx.Err(); err != nil {
				p.err = err
				return
			}
			pkt, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				p.err = err
				return
			}
			select {
			case p.packets <- pkt:
				n++
			case <-ctx.Done():
				p.err = ctx.Err()
				return
			}
		}
		p.bytes += r.BytesRead()
		logrus.Debugf("prefetch: %s yielded %d packets (%d bytes)", r.Path(), n, r.BytesRead())
	}
}

// Packets returns the hand-off channel.
func (p *Prefetcher) Packets() <-chan Packet { return p.packets }

// Err waits for the reader goroutine to finish and returns its error, if any.
func (p *Prefetcher) Err() error {
	<-p.done
	return p.err
}

// BytesRead returns the bytes consumed from fully read files. Valid after Err returns.
func (p *Prefetcher) BytesRead() int64 {
	<-p.done
	return p.bytes
}

// Collect drains a prefetcher over readers and returns all packets ordered by
// timestamp (file order for ties).
func Collect(ctx context.Context, readers []PacketReader, buffer int) ([]Packet, error) {
	p := Prefetch(ctx, readers, buffer)
	var out []Packet
	for pkt := range p.Packets() {
		out = append(out, pkt)
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}
