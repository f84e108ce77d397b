package flip

import (
	"cbcflip/internal/crypto"
	"cbcflip/internal/token"
)

const BlockSize = 16

// Plan is the attacker's belief about a plaintext window starting at index 0
// and the bytes it should read after the attack.
type Plan struct {
	Old []byte
	New []byte
}

func NewPlan(old, new string) (Plan, error) {
	p := Plan{Old: []byte(old), New: []byte(new)}
	return p, p.validate()
}

func (p Plan) validate() error {
	if len(p.Old) != len(p.New) {
		return precondition(nil, "old and new must be the same length (%d != %d bytes)", len(p.Old), len(p.New))
	}
	return nil
}

// Deltas returns the ascending plaintext indices whose bytes differ.
func (p Plan) Deltas() []int {
	var out []int
	for i := range p.Old {
		if p.Old[i] != p.New[i] {
			out = append(out, i)
		}
	}
	return out
}

// Target is a validated token buffer together with the geometry used to flip it.
type Target struct {
	Buf       []byte
	BlockSize int
	Layout    crypto.Layout
}

// ParseToken decodes s with codec and checks it is a whole number of blocks.
func ParseToken(codec token.Codec, s string, blockSize int, layout crypto.Layout) (Target, error) {
	buf, err := codec.Decode(s)
	if err != nil {
		return Target{}, precondition(err, "session is not valid %s base64", codec.Name())
	}
	t := Target{Buf: buf, BlockSize: blockSize, Layout: layout}
	return t, t.validate()
}

func (t Target) validate() error {
	if t.BlockSize <= 0 || t.BlockSize > 255 {
		return precondition(nil, "invalid block size %d", t.BlockSize)
	}
	if len(t.Buf) < t.BlockSize {
		return precondition(nil, "token is %d bytes, shorter than one %d-byte block", len(t.Buf), t.BlockSize)
	}
	if len(t.Buf)%t.BlockSize != 0 {
		return precondition(nil, "token is %d bytes, not a multiple of the %d-byte block size", len(t.Buf), t.BlockSize)
	}
	return nil
}

// Offsets maps every differing index of p to its controlling offset in t.
// It fails when an index has no controlling byte inside the token.
func (t Target) Offsets(p Plan) (map[int]int, error) {
	limit := crypto.Controllable(len(t.Buf), t.BlockSize, t.Layout)
	out := make(map[int]int)
	for _, i := range p.Deltas() {
		if i >= limit {
			return nil, precondition(nil, "byte %d lies past the last block a %d-byte token can steer", i, len(t.Buf))
		}
		off, err := crypto.ControllingOffset(i, t.BlockSize, t.Layout)
		if err != nil {
			return nil, precondition(err, "byte %d", i)
		}
		out[i] = off
	}
	return out, nil
}

// Predict forges the token a pure XOR model expects: each mask block is
// tweaked by old XOR new of the plaintext block it controls. No request is sent.
func (t Target) Predict(p Plan) ([]byte, error) {
	offsets, err := t.Offsets(p)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(t.Buf))
	copy(out, t.Buf)
	masks := make(map[int][]byte)
	for i, off := range offsets {
		start := off - off%t.BlockSize
		if masks[start] == nil {
			masks[start] = make([]byte, t.BlockSize)
		}
		masks[start][off-start] = p.Old[i] ^ p.New[i]
	}
	for start, m := range masks {
		copy(out[start:], crypto.TweakIV(out[start:start+t.BlockSize], m))
	}
	return out, nil
}
