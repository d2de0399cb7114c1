package flow

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/google/gopacket/layers"

	"github.com/inference-sim/mixnet-sim/sim"
)

// CSVColumns is the header row of the text trace format. Timestamps are
// integer microseconds.
var CSVColumns = []string{"timestamp_us", "src", "dst", "src_port", "dst_port", "proto", "length", "payload_len"}

// CSVReader reads the text trace format.
type CSVReader struct {
	path    string
	file    *os.File
	counter *countingReader
	reader  *csv.Reader
	row     int
}

// OpenCSV opens a text trace and consumes its header row.
func OpenCSV(path string) (*CSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &sim.ConfigurationError{Key: "TRACE_DIR", Value: path, Err: err}
	}
	counter := &countingReader{r: f}
	reader := csv.NewReader(counter)
	reader.FieldsPerRecord = len(CSVColumns)
	reader.TrimLeadingSpace = true
	if _, err := reader.Read(); err != nil {
		_ = f.Close()
		return nil, &sim.TraceReadFailure{Path: path, Err: fmt.Errorf("reading CSV header: %w", err)}
	}
	return &CSVReader{path: path, file: f, counter: counter, reader: reader, row: 1}, nil
}

// Next implements PacketReader.
func (r *CSVReader) Next() (Packet, error) {
	row, err := r.reader.Read()
	if errors.Is(err, io.EOF) {
		return Packet{}, io.EOF
	}
	r.row++
	if err != nil {
		return Packet{}, &sim.TraceReadFailure{Path: r.path, Err: err}
	}
	pkt, err := parseCSVRow(row)
	if err != nil {
		return Packet{}, &sim.TraceReadFailure{Path: r.path, Err: fmt.Errorf("row %d: %w", r.row, err)}
	}
	return pkt, nil
}

// BytesRead implements PacketReader.
func (r *CSVReader) BytesRead() int64 { return r.counter.n }

// Path implements PacketReader.
func (r *CSVReader) Path() string { return r.path }

// Close implements PacketReader.
func (r *CSVReader) Close() error { return r.file.Close() }

func parseCSVRow(row []string) (Packet, error) {
	var pkt Packet
	var err error
	if pkt.Timestamp, err = strconv.ParseInt(row[0], 10, 64); err != nil {
		return Packet{}, fmt.Errorf("timestamp: %w", err)
	}
	if pkt.Src, err = netip.ParseAddr(row[1]); err != nil {
		return Packet{}, fmt.Errorf("src: %w", err)
	}
	if pkt.Dst, err = netip.ParseAddr(row[2]); err != nil {
		return Packet{}, fmt.Errorf("dst: %w", err)
	}
	sp, err := strconv.ParseUint(row[3], 10, 16)
	if err != nil {
		return Packet{}, fmt.Errorf("src_port: %w", err)
	}
	dp, err := strconv.ParseUint(row[4], 10, 16)
	if err != nil {
		return Packet{}, fmt.Errorf("dst_port: %w", err)
	}
	pkt.SrcPort, pkt.DstPort = uint16(sp), uint16(dp)
	if pkt.Transport, err = parseProto(row[5]); err != nil {
		return Packet{}, err
	}
	if pkt.Length, err = strconv.Atoi(row[6]); err != nil {
		return Packet{}, fmt.Errorf("length: %w", err)
	}
	if pkt.PayloadLen, err = strconv.Atoi(row[7]); err != nil {
		return Packet{}, fmt.Errorf("payload_len: %w", err)
	}
	return pkt, nil
}

func parseProto(s string) (layers.IPProtocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return layers.IPProtocolTCP, nil
	case "udp":
		return layers.IPProtocolUDP, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("proto %q: %w", s, err)
	}
	return layers.IPProtocol(n), nil
}

// WriteCSV writes packets in the text trace format.
func WriteCSV(w io.Writer, packets []Packet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, p := range packets {
		row := []string{
			strconv.FormatInt(p.Timestamp, 10),
			p.Src.String(),
			p.Dst.String(),
			strconv.Itoa(int(p.SrcPort)),
			strconv.Itoa(int(p.DstPort)),
			formatProto(p.Transport),
			strconv.Itoa(p.Length),
			strconv.Itoa(p.PayloadLen),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatProto(p layers.IPProtocol) string {
	switch p {
	case layers.IPProtocolTCP:
		return "tcp"
	case layers.IPProtocolUDP:
		return "udp"
	}
	return strconv.Itoa(int(p))
}
