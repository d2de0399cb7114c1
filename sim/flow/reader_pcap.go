package flow

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/inference-sim/mixnet-sim/sim"
)

// PcapReader decodes libpcap capture files. Frames without an IP layer are skipped.
type PcapReader struct {
	path     string
	file     *os.File
	counter  *countingReader
	reader   *pcapgo.Reader
	linkType layers.LinkType
}

// OpenPcap opens a libpcap capture file.
func OpenPcap(path string) (*PcapReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &sim.ConfigurationError{Key: "TRACE_DIR", Value: path, Err: err}
	}
	counter := &countingReader{r: f}
	r, err := pcapgo.NewReader(counter)
	if err != nil {
		_ = f.Close()
		return nil, &sim.TraceReadFailure{Path: path, Err: fmt.Errorf("reading pcap header: %w", err)}
	}
	return &PcapReader{path: path, file: f, counter: counter, reader: r, linkType: r.LinkType()}, nil
}

// Next implements PacketReader.
func (r *PcapReader) Next() (Packet, error) {
	for {
		data, ci, err := r.reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return Packet{}, io.EOF
		}
		if err != nil {
			return Packet{}, &sim.TraceReadFailure{Path: r.path, Err: err}
		}
		pkt, ok := decodeFrame(data, r.linkType)
		if !ok {
			continue
		}
		pkt.Timestamp = ci.Timestamp.UnixMicro()
		pkt.Length = ci.Length
		return pkt, nil
	}
}

// BytesRead implements PacketReader.
func (r *PcapReader) BytesRead() int64 { return r.counter.n }

// Path implements PacketReader.
func (r *PcapReader) Path() string { return r.path }

// Close implements PacketReader.
func (r *PcapReader) Close() error { return r.file.Close() }

func decodeFrame(data []byte, linkType layers.LinkType) (Packet, bool) {
	gp := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	var pkt Packet
	switch ip := gp.NetworkLayer().(type) {
	case *layers.IPv4:
		pkt.Src, pkt.Dst = toAddr(ip.SrcIP), toAddr(ip.DstIP)
		pkt.Transport = ip.Protocol
	case *layers.IPv6:
		pkt.Src, pkt.Dst = toAddr(ip.SrcIP), toAddr(ip.DstIP)
		pkt.Transport = ip.NextHeader
	default:
		return Packet{}, false
	}
	switch tl := gp.TransportLayer().(type) {
	case *layers.TCP:
		pkt.SrcPort, pkt.DstPort = uint16(tl.SrcPort), uint16(tl.DstPort)
		pkt.PayloadLen = len(tl.LayerPayload())
	case *layers.UDP:
		pkt.SrcPort, pkt.DstPort = uint16(tl.SrcPort), uint16(tl.DstPort)
		pkt.PayloadLen = len(tl.LayerPayload())
	}
	return pkt, pkt.Src.IsValid() && pkt.Dst.IsValid()
}

func toAddr(ip net.IP) netip.Addr {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}
