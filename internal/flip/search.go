package flip

import (
	"context"
	"strings"
	"unicode/utf8"

	"cbcflip/internal/crypto"
	"cbcflip/internal/oracle"
	"cbcflip/internal/token"
)

const snippetLen = 60

// Candidate is a byte value that made the oracle report success.
type Candidate struct {
	Value   byte
	Status  int
	Snippet string
	Token   string
}

// Observer receives progress callbacks. All methods are called from the run's goroutine.
type Observer interface {
	PositionStarted(index, offset int)
	Probed(index int, value byte, resp oracle.Response, hit bool)
	PositionDone(step Step)
}

type nopObserver struct{}

func (nopObserver) PositionStarted(int, int)                  {}
func (nopObserver) Probed(int, byte, oracle.Response, bool) {}
func (nopObserver) PositionDone(Step)                         {}

// Searcher brute-forces one token offset against an oracle.
type Searcher struct {
	Oracle   oracle.Oracle
	Match    oracle.Predicate
	Codec    token.Codec
	Observer Observer
}

func (s *Searcher) observer() Observer {
	if s.Observer == nil {
		return nopObserver{}
	}
	return s.Observer
}

// Search submits buf with buf[offset] replaced by every value 0..255 and
// returns the successful ones in ascending order. buf is not modified and
// all 256 values are always tried. index is only passed to the observer.
func (s *Searcher) Search(ctx context.Context, buf []byte, index, offset int) []Candidate {
	codec := s.Codec
	if codec == nil {
		codec = token.Std
	}
	obs := s.observer()
	var hits []Candidate
	for v := 0; v <= 0xff; v++ {
		trial := crypto.FlipByte(buf, offset, byte(v))
		resp := s.Oracle.Submit(ctx, trial)
		hit := s.Match(resp)
		obs.Probed(index, byte(v), resp, hit)
		if !hit {
			continue
		}
		hits = append(hits, Candidate{
			Value:   byte(v),
			Status:  resp.Status,
			Snippet: Snippet(resp.Body),
			Token:   codec.Encode(trial),
		})
	}
	return hits
}

// Snippet shortens a response body to its first 60 characters on one line.
func Snippet(body string) string {
	if utf8.RuneCountInString(body) > snippetLen {
		n := 0
		for i := range body {
			if n == snippetLen {
				body = body[:i]
				break
			}
			n++
		}
	}
	return strings.ReplaceAll(body, "\n", `\n`)
}
