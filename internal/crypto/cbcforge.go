package crypto

import (
	"errors"
	"fmt"
)

// CBC tweak utilities for 1-byte controlled modifications.
// For CBC, plaintext[n] = Dec(C[n]) XOR C[n-1], and plaintext[0] = Dec(C[0]) XOR IV.
// Changing a byte of C[n-1] (or the IV) changes the same byte of plaintext[n]
// and scrambles plaintext[n-1].

// Layout describes where the IV lives relative to the ciphertext blocks of a token.
type Layout int

const (
	// LayoutIVPrefixed is [IV‖C0‖C1…], the IV sent as the first block of the token.
	LayoutIVPrefixed Layout = iota
	// LayoutIVDetached is [C0‖C1…], the IV carried somewhere else.
	LayoutIVDetached
)

var ErrIVNotInBuffer = errors.New("plaintext block 0 is masked by an IV that is not part of the token")

func (l Layout) String() string {
	switch l {
	case LayoutIVPrefixed: return "iv-prefixed"
	case LayoutIVDetached: return "iv-detached"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

func ParseLayout(s string) (Layout, error) {
	switch s {
	case "", "iv-prefixed": return LayoutIVPrefixed, nil
	case "iv-detached": return LayoutIVDetached, nil
	}
	return 0, fmt.Errorf("unknown layout %q (want iv-prefixed or iv-detached)", s)
}

// maskBlock returns the buffer block index that holds the XOR mask of plaintext block n.
func (l Layout) maskBlock(n int) (int, error) {
	switch l {
	case LayoutIVPrefixed:
		// IV is buffer block 0, C[k] is buffer block k+1; the mask of block n is C[n-1] (or IV).
		return n, nil
	case LayoutIVDetached:
		if n == 0 {
			return 0, ErrIVNotInBuffer
		}
		return n - 1, nil
	}
	return 0, fmt.Errorf("unsupported %s", l)
}

// ControllingOffset maps a plaintext byte index to the token offset whose
// value is XORed into that byte on decryption.
func ControllingOffset(index, blockSize int, layout Layout) (int, error) {
	if index < 0 {
		return 0, fmt.Errorf("negative plaintext index %d", index)
	}
	if blockSize <= 0 {
		return 0, fmt.Errorf("invalid block size %d", blockSize)
	}
	block, inBlock := index/blockSize, index%blockSize
	mb, err := layout.maskBlock(block)
	if err != nil {
		return 0, err
	}
	return mb*blockSize + inBlock, nil
}

// Controllable returns the plaintext length a token of n bytes decrypts to.
// Indices at or past it have no controlling byte in the token.
func Controllable(n, blockSize int, layout Layout) int {
	switch layout {
	case LayoutIVPrefixed:
		return n - blockSize
	case LayoutIVDetached:
		// C[0..k-1] mask plaintext blocks 1..k; plaintext block 0 is out of reach.
		return n
	}
	return 0
}

// FlipByte returns a copy of buf with buf[offset] replaced by v.
func FlipByte(buf []byte, offset int, v byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	out[offset] = v
	return out
}

// ExpectedByte is the mask byte that turns oldPT into newPT if the block
// cipher output is unchanged: current XOR old XOR new.
func ExpectedByte(current, oldPT, newPT byte) byte {
	return current ^ oldPT ^ newPT
}

// TweakIV applies a XOR mask to the IV to induce the same XOR in the first plaintext block.
func TweakIV(iv []byte, xorMask []byte) []byte {
	out := make([]byte, len(iv))
	for i := range iv {
		m := byte(0)
		if i < len(xorMask) { m = xorMask[i] }
		out[i] = iv[i] ^ m
	}
	return out
}
