package token

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Codec converts between raw token bytes and their transport form.
type Codec interface {
	Encode(buf []byte) string
	Decode(s string) ([]byte, error)
	Name() string
}

// Base64 is a Codec over one of the encoding/base64 alphabets.
type Base64 struct {
	enc  *base64.Encoding
	name string
}

var (
	Std    = Base64{enc: base64.StdEncoding, name: "std"}
	URL    = Base64{enc: base64.URLEncoding, name: "url"}
	RawStd = Base64{enc: base64.RawStdEncoding, name: "raw-std"}
	RawURL = Base64{enc: base64.RawURLEncoding, name: "raw-url"}
)

func (b Base64) Encode(buf []byte) string { return b.enc.EncodeToString(buf) }

// Decode tolerates surrounding whitespace, which copied cookies often carry.
func (b Base64) Decode(s string) ([]byte, error) {
	out, err := b.enc.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode %s base64: %w", b.name, err)
	}
	return out, nil
}

func (b Base64) Name() string { return b.name }

// ParseEncoding returns the codec registered under name; empty means std.
func ParseEncoding(name string) (Codec, error) {
	for _, c := range []Base64{Std, URL, RawStd, RawURL} {
		if c.name == name {
			return c, nil
		}
	}
	if name == "" {
		return Std, nil
	}
	return nil, fmt.Errorf("unknown encoding %q (want std, url, raw-std or raw-url)", name)
}
