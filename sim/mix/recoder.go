package mix

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"

	"github.com/inference-sim/mixnet-sim/sim"
)

// Recoder transforms a message's payload as it leaves a mix so that the
// outgoing bytes cannot be linked to the incoming ones. The transform is
// length-preserving; its contents are opaque to the rest of the simulator.
type Recoder interface {
	Name() string
	Recode(msg *sim.Message, hop sim.MixID)
}

// ValidRecoders is the set of recognized recoder names.
// Empty string defaults to identity.
var ValidRecoders = map[string]bool{"": true, "identity": true, "chacha20": true}

// NewRecoder returns the recoder called name. secret seeds per-mix keys and is
// ignored by the identity recoder.
// Panics on unrecognized names; callers validate configuration first.
func NewRecoder(name string, mix sim.MixID, secret []byte) Recoder {
	switch name {
	case "", "identity":
		return IdentityRecoder{}
	case "chacha20":
		return NewChaCha20Recoder(mix, secret)
	default:
		panic(fmt.Sprintf("unknown recoder %q", name))
	}
}

// IdentityRecoder leaves payloads untouched.
type IdentityRecoder struct{}

// Name implements Recoder.
func (IdentityRecoder) Name() string { return "identity" }

// Recode implements Recoder.
func (IdentityRecoder) Recode(*sim.Message, sim.MixID) {}

// ChaCha20Recoder re-encrypts the payload with a per-mix key and a nonce bound
// to the message id and hop.
type ChaCha20Recoder struct {
	key [chacha20.KeySize]byte
}

// NewChaCha20Recoder derives the key of mix from secret.
func NewChaCha20Recoder(mix sim.MixID, secret []byte) *ChaCha20Recoder {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(mix))
	// a 32-byte MAC key is always accepted by blake2b
	root := blake2b.Sum256(secret)
	h, _ := blake2b.New256(root[:])
	h.Write([]byte("mix-recoder"))
	h.Write(buf[:])
	r := &ChaCha20Recoder{}
	copy(r.key[:], h.Sum(nil))
	return r
}

// Name implements Recoder.
func (*ChaCha20Recoder) Name() string { return "chacha20" }

// Recode implements Recoder. The payload is replaced, not modified in place,
// because replies and traces may share the original slice.
func (r *ChaCha20Recoder) Recode(msg *sim.Message, hop sim.MixID) {
	if len(msg.Payload) == 0 {
		return
	}
	var hopBuf [8]byte
	binary.BigEndian.PutUint64(hopBuf[:], uint64(hop))
	n := blake2b.Sum256(append([]byte(msg.ID), hopBuf[:]...))
	c, err := chacha20.NewUnauthenticatedCipher(r.key[:], n[:chacha20.NonceSize])
	if err != nil {
		panic(fmt.Sprintf("chacha20 recoder: %v", err))
	}
	out := make([]byte, len(msg.Payload))
	c.XORKeyStream(out, msg.Payload)
	msg.Payload = out
}
