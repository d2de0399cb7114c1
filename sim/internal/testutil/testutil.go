// Package testutil provides shared test infrastructure for the mixnet
// simulator: trace file writers and float assertions used across sim/
// sub-package tests.
package testutil

import (
	"math"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Frame describes one synthetic IPv4 packet for WritePcap.
type Frame struct {
	At      time.Duration // offset from the capture start
	Src     string
	Dst     string
	SrcPort uint16
	DstPort uint16
	UDP     bool
	Payload int // payload bytes
}

// CaptureStart is the wall-clock time of the first frame in synthetic captures.
var CaptureStart = time.Unix(1_700_000_000, 0).UTC()

// WriteFile writes content to name inside dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// WritePcap writes frames as an Ethernet libpcap capture at dir/name.
func WritePcap(t *testing.T, dir, name string, frames []Frame) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("writing pcap header: %v", err)
	}
	for i, fr := range frames {
		data := serialize(t, fr)
		ci := gopacket.CaptureInfo{
			Timestamp:     CaptureStart.Add(fr.At),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatalf("writing frame %d: %v", i, err)
		}
	}
	return path
}

func serialize(t *testing.T, fr Frame) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4,
		TTL:     64,
		SrcIP:   net.ParseIP(fr.Src).To4(),
		DstIP:   net.ParseIP(fr.Dst).To4(),
	}
	payload := gopacket.Payload(make([]byte, fr.Payload))
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	buf := gopacket.NewSerializeBuffer()
	var err error
	if fr.UDP {
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{SrcPort: layers.UDPPort(fr.SrcPort), DstPort: layers.UDPPort(fr.DstPort)}
		if err = udp.SetNetworkLayerForChecksum(ip); err == nil {
			err = gopacket.SerializeLayers(buf, opts, eth, ip, udp, payload)
		}
	} else {
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{SrcPort: layers.TCPPort(fr.SrcPort), DstPort: layers.TCPPort(fr.DstPort), ACK: true, Window: 1024}
		if err = tcp.SetNetworkLayerForChecksum(ip); err == nil {
			err = gopacket.SerializeLayers(buf, opts, eth, ip, tcp, payload)
		}
	}
	if err != nil {
		t.Fatalf("serializing frame: %v", err)
	}
	return buf.Bytes()
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
