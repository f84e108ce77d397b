package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidPadding = errors.New("invalid padding")
	ErrShortToken     = errors.New("token too short")
)

// Sealer turns plaintext into an opaque token and back.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(token []byte) ([]byte, error)
}

// CBCSealer produces [IV‖AES-CBC(PKCS#7(plaintext))] with no integrity check.
type CBCSealer struct {
	block cipher.Block
}

func NewCBCSealer(key []byte) (*CBCSealer, error) {
	b, err := aes.NewCipher(key)
	if err != nil { return nil, err }
	return &CBCSealer{block: b}, nil
}

func (s *CBCSealer) Seal(plaintext []byte) ([]byte, error) {
	bs := s.block.BlockSize()
	padded := PKCS7Pad(plaintext, bs)
	out := make([]byte, bs+len(padded))
	if _, err := rand.Read(out[:bs]); err != nil { return nil, err }
	cipher.NewCBCEncrypter(s.block, out[:bs]).CryptBlocks(out[bs:], padded)
	return out, nil
}

func (s *CBCSealer) Open(token []byte) ([]byte, error) {
	bs := s.block.BlockSize()
	if len(token) < 2*bs || len(token)%bs != 0 {
		return nil, ErrShortToken
	}
	pt := make([]byte, len(token)-bs)
	cipher.NewCBCDecrypter(s.block, token[:bs]).CryptBlocks(pt, token[bs:])
	return PKCS7Unpad(pt, bs)
}

// AEADSealer produces [nonce‖XChaCha20-Poly1305(plaintext)]; any tampering fails Open.
type AEADSealer struct {
	aead cipher.AEAD
}

func NewAEADSealer(key []byte) (*AEADSealer, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil { return nil, err }
	return &AEADSealer{aead: a}, nil
}

func (s *AEADSealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil { return nil, err }
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *AEADSealer) Open(token []byte) ([]byte, error) {
	if len(token) < chacha20poly1305.NonceSizeX+s.aead.Overhead() {
		return nil, ErrShortToken
	}
	nonce, ct := token[:chacha20poly1305.NonceSizeX], token[chacha20poly1305.NonceSizeX:]
	pt, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil { return nil, errors.New("decryption failed") }
	return pt, nil
}

func PKCS7Pad(buf []byte, blockSize int) []byte {
	n := blockSize - len(buf)%blockSize
	out := make([]byte, len(buf), len(buf)+n)
	copy(out, buf)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func PKCS7Unpad(buf []byte, blockSize int) ([]byte, error) {
	if len(buf) == 0 || len(buf)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	b := buf[len(buf)-1]
	n := int(b)
	if n == 0 || n > blockSize || !bytes.Equal(bytes.Repeat([]byte{b}, n), buf[len(buf)-n:]) {
		return nil, ErrInvalidPadding
	}
	return buf[:len(buf)-n], nil
}
