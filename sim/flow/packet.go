// Package flow reads recorded network traces and groups their packets into
// flows and hosts. The resulting Index is built once per trace folder and is
// read-only afterwards; it feeds trace-driven traffic sources.
package flow

import (
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/gopacket/layers"

	"github.com/inference-sim/mixnet-sim/sim"
)

// Packet is one decoded trace record.
type Packet struct {
	Timestamp  int64 // capture time in microseconds
	Src        netip.Addr
	Dst        netip.Addr
	SrcPort    uint16
	DstPort    uint16
	Transport  layers.IPProtocol
	Length     int // bytes on the wire
	PayloadLen int // transport payload bytes
}

// SrcAddrPort returns the sending endpoint.
func (p Packet) SrcAddrPort() netip.AddrPort { return netip.AddrPortFrom(p.Src, p.SrcPort) }

// DstAddrPort returns the receiving endpoint.
func (p Packet) DstAddrPort() netip.AddrPort { return netip.AddrPortFrom(p.Dst, p.DstPort) }

// PacketReader yields the packets of one trace file in file order.
// Next returns io.EOF at the end. A reader cannot be rewound; reopen the file instead.
type PacketReader interface {
	Next() (Packet, error)
	BytesRead() int64
	Path() string
	Close() error
}

// Open returns a reader for path chosen by file extension (.pcap, .cap, .csv).
func Open(path string) (PacketReader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".cap":
		return OpenPcap(path)
	case ".csv":
		return OpenCSV(path)
	default:
		return nil, &sim.ConfigurationError{Key: "TRACE_DIR", Value: path, Err: fmt.Errorf("unsupported trace format")}
	}
}

// IsTraceFile reports whether Open understands the file name.
func IsTraceFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pcap", ".cap", ".csv":
		return true
	}
	return false
}

// OpenDir opens every trace file in dir, sorted by name. Files with other
// extensions are skipped. A missing path or a path that is not a directory is
// a configuration error.
func OpenDir(dir string) ([]PacketReader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &sim.ConfigurationError{Key: "TRACE_DIR", Value: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &sim.ConfigurationError{Key: "TRACE_DIR", Value: dir, Err: fmt.Errorf("not a directory")}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &sim.ConfigurationError{Key: "TRACE_DIR", Value: dir, Err: err}
	}
	var readers []PacketReader
	for _, e := range entries {
		if e.IsDir() || !IsTraceFile(e.Name()) {
			continue
		}
		r, err := Open(filepath.Join(dir, e.Name()))
		if err != nil {
			closeAll(readers)
			return nil, err
		}
		readers = append(readers, r)
	}
	return readers, nil
}

func closeAll(readers []PacketReader) {
	for _, r := range readers {
		_ = r.Close()
	}
}

// countingReader tracks how many bytes were consumed from the underlying file.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
