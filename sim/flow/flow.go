package flow

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket/layers"
)

// Direction classifies a flow relative to the local network.
type Direction string

const (
	ToWAN    Direction = "to_wan"   // local initiator, remote responder
	FromWAN  Direction = "from_wan" // remote initiator, local responder
	Local    Direction = "local"    // both endpoints local
	External Direction = "external" // neither endpoint local
)

// AppProtocol is the application protocol guessed from the responder port.
type AppProtocol string

const (
	ProtoHTTP  AppProtocol = "http"
	ProtoHTTPS AppProtocol = "https"
	ProtoDNS   AppProtocol = "dns"
	ProtoTCP   AppProtocol = "tcp"
	ProtoUDP   AppProtocol = "udp"
	ProtoOther AppProtocol = "other"
)

// Key identifies a flow in initiator orientation: the endpoint that sent the
// first packet is the initiator.
type Key struct {
	Initiator netip.AddrPort
	Responder netip.AddrPort
	Transport layers.IPProtocol
}

// Reverse returns the key seen from the responder.
func (k Key) Reverse() Key {
	return Key{Initiator: k.Responder, Responder: k.Initiator, Transport: k.Transport}
}

func (k Key) String() string {
	return fmt.Sprintf("%s %s -> %s", k.Transport, k.Initiator, k.Responder)
}

// Flow aggregates the packets of one conversation.
type Flow struct {
	Key
	Direction   Direction
	Protocol    AppProtocol
	Start       int64 // first packet, microseconds
	End         int64 // last packet, microseconds
	Bytes       int64
	Packets     int64
	RequestSize int64 // initiator -> responder payload bytes
	ReplySize   int64 // responder -> initiator payload bytes
}

// Duration returns the time between the first and last packet.
func (f *Flow) Duration() int64 { return f.End - f.Start }

// IsOutgoing reports whether the flow was initiated from the local network
// towards the WAN.
func (f *Flow) IsOutgoing() bool { return f.Direction == ToWAN }

func classify(initiatorLocal, responderLocal bool) Direction {
	switch {
	case initiatorLocal && responderLocal:
		return Local
	case initiatorLocal:
		return ToWAN
	case responderLocal:
		return FromWAN
	default:
		return External
	}
}

func guessProtocol(transport layers.IPProtocol, responderPort uint16) AppProtocol {
	switch {
	case transport == layers.IPProtocolTCP && (responderPort == 80 || responderPort == 8080):
		return ProtoHTTP
	case transport == layers.IPProtocolTCP && responderPort == 443:
		return ProtoHTTPS
	case responderPort == 53:
		return ProtoDNS
	case transport == layers.IPProtocolTCP:
		return ProtoTCP
	case transport == layers.IPProtocolUDP:
		return ProtoUDP
	}
	return ProtoOther
}
