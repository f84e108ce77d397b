package flip

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"cbcflip/internal/crypto"
	"cbcflip/internal/oracle"
	"cbcflip/internal/token"
)

const ok = "access granted"

// countingOracle answers success when accept returns true for the call number and token.
type countingOracle struct {
	calls  int
	accept func(call int, tok []byte) bool
}

func (o *countingOracle) Submit(ctx context.Context, tok []byte) oracle.Response {
	call := o.calls
	o.calls++
	if o.accept != nil && o.accept(call, tok) {
		return oracle.Response{Body: ok + "\nline two", Status: 200}
	}
	return oracle.Response{Body: "denied", Status: 403}
}

func newChainer(o oracle.Oracle) *Chainer {
	return &Chainer{Searcher: &Searcher{Oracle: o, Match: oracle.Contains(ok), Codec: token.Std}}
}

func zeroTarget(n int) Target {
	return Target{Buf: make([]byte, n), BlockSize: 16, Layout: crypto.LayoutIVPrefixed}
}

func mustPlan(t *testing.T, old, new string) Plan {
	t.Helper()
	p, err := NewPlan(old, new)
	if err != nil { t.Fatal(err) }
	return p
}

func TestSearchTriesAll256(t *testing.T) {
	o := &countingOracle{accept: func(call int, tok []byte) bool { return tok[5] == 0x10 || tok[5] == 0x20 }}
	s := &Searcher{Oracle: o, Match: oracle.Contains(ok)}
	buf := make([]byte, 32)
	got := s.Search(context.Background(), buf, 5, 5)
	if o.calls != 256 { t.Fatalf("calls: got %d, want 256", o.calls) }
	if len(got) != 2 || got[0].Value != 0x10 || got[1].Value != 0x20 { t.Fatalf("unexpected candidates: %+v", got) }
	if !bytes.Equal(buf, make([]byte, 32)) { t.Fatal("search mutated its input") }
	if got[0].Status != 200 || got[0].Snippet != `access granted\nline two` { t.Fatalf("unexpected candidate: %+v", got[0]) }
	want := make([]byte, 32)
	want[5] = 0x10
	if got[0].Token != token.Std.Encode(want) { t.Fatalf("token: %s", got[0].Token) }
}

func TestSearchUnreachableOracleYieldsNothing(t *testing.T) {
	calls := 0
	o := oracle.Func(func(ctx context.Context, tok []byte) oracle.Response {
		calls++
		return oracle.Response{Err: errors.New("connection refused")}
	})
	s := &Searcher{Oracle: o, Match: oracle.Contains("")}
	if got := s.Search(context.Background(), make([]byte, 16), 0, 0); len(got) != 0 { t.Fatalf("expected no candidates, got %d", len(got)) }
	if calls != 256 { t.Fatalf("calls: %d", calls) }
}

func TestRunFlipsAAAAToBBBB(t *testing.T) {
	want := byte('B' ^ 'A' ^ 0)
	// Each position gets exactly 256 calls, so the call number identifies the offset under test.
	o := &countingOracle{accept: func(call int, tok []byte) bool { return tok[call/256] == want }}
	res, err := newChainer(o).Run(context.Background(), zeroTarget(32), mustPlan(t, "AAAA", "BBBB"))
	if err != nil { t.Fatal(err) }
	if res.State != Finalized { t.Fatalf("state: %s", res.State) }
	if o.calls != 4*256 { t.Fatalf("calls: %d", o.calls) }
	final := res.Final.Bytes()
	for i := 0; i < 4; i++ {
		if final[i] != want { t.Fatalf("byte %d: got 0x%02x, want 0x%02x", i, final[i], want) }
	}
	if !bytes.Equal(final[4:], make([]byte, 28)) { t.Fatal("bytes 4..31 changed") }
	if len(res.Steps) != 4 || res.Final.Committed() != 4 { t.Fatalf("steps=%d committed=%d", len(res.Steps), res.Final.Committed()) }
	for i, s := range res.Steps {
		c, ok := s.ChosenCandidate()
		if !ok || c.Value != want || s.Index != i || s.Offset != i || s.Expected != want { t.Fatalf("step %d: %+v", i, s) }
	}
}

func TestRunSkipsEqualBytes(t *testing.T) {
	o := &countingOracle{accept: func(call int, tok []byte) bool { return true }}
	res, err := newChainer(o).Run(context.Background(), zeroTarget(48), mustPlan(t, "user=guest;x", "user=admin;x"))
	if err != nil { t.Fatal(err) }
	// guest -> admin differs at all five positions 5..9
	if o.calls != 5*256 { t.Fatalf("calls: got %d, want %d", o.calls, 5*256) }
	for i, s := range res.Steps {
		if s.Index != 5+i { t.Fatalf("step %d: index %d", i, s.Index) }
	}
	o.calls = 0
	if _, err := newChainer(o).Run(context.Background(), zeroTarget(32), mustPlan(t, "same", "same")); err != nil { t.Fatal(err) }
	if o.calls != 0 { t.Fatalf("identical plaintext sent %d requests", o.calls) }
}

func TestRunCommitsLowestCandidate(t *testing.T) {
	o := &countingOracle{accept: func(call int, tok []byte) bool {
		v := tok[call/256]
		return v == 0x80 || v == 0x07 || v == 0xfe
	}}
	res, err := newChainer(o).Run(context.Background(), zeroTarget(32), mustPlan(t, "ab", "cd"))
	if err != nil { t.Fatal(err) }
	for _, s := range res.Steps {
		if len(s.Candidates) != 3 { t.Fatalf("candidates: %+v", s.Candidates) }
		if c, _ := s.ChosenCandidate(); c.Value != 0x07 { t.Fatalf("chose 0x%02x", c.Value) }
	}
}

func TestRunCustomSelector(t *testing.T) {
	o := &countingOracle{accept: func(call int, tok []byte) bool { v := tok[0]; return v == 1 || v == 2 }}
	c := newChainer(o)
	c.Select = func(cands []Candidate) int { return len(cands) - 1 }
	res, err := c.Run(context.Background(), zeroTarget(32), mustPlan(t, "a", "b"))
	if err != nil { t.Fatal(err) }
	if res.Final.Bytes()[0] != 2 { t.Fatalf("got 0x%02x", res.Final.Bytes()[0]) }
}

func TestRunAbortsAtFirstEmptyPosition(t *testing.T) {
	o := &countingOracle{}
	res, err := newChainer(o).Run(context.Background(), zeroTarget(32), mustPlan(t, "AAAA", "BBBB"))
	if !errors.Is(err, ErrExhausted) { t.Fatalf("expected ErrExhausted, got %v", err) }
	var ee *ExhaustedError
	if !errors.As(err, &ee) || ee.Index != 0 || ee.Partial.Committed() != 0 { t.Fatalf("unexpected error: %#v", err) }
	if res.State != Aborted || len(res.Steps) != 1 || res.Final.Committed() != 0 { t.Fatalf("unexpected result: %+v", res) }
	if o.calls != 256 { t.Fatalf("later positions were probed: %d calls", o.calls) }
}

func TestRunAbortKeepsPartialState(t *testing.T) {
	o := &countingOracle{accept: func(call int, tok []byte) bool { return call < 256 && tok[0] == 9 }}
	res, err := newChainer(o).Run(context.Background(), zeroTarget(32), mustPlan(t, "AAAA", "BBBB"))
	var ee *ExhaustedError
	if !errors.As(err, &ee) || ee.Index != 1 { t.Fatalf("unexpected error: %v", err) }
	if res.Final.Committed() != 1 || res.Final.Bytes()[0] != 9 { t.Fatalf("partial state: %v", res.Final.Bytes()[:4]) }
	if o.calls != 512 { t.Fatalf("calls: %d", o.calls) }
}

func TestRunPreconditions(t *testing.T) {
	o := &countingOracle{}
	cases := []struct {
		name string
		t    Target
		p    Plan
	}{
		{"length mismatch", zeroTarget(32), Plan{Old: []byte("abc"), New: []byte("abcd")}},
		{"short token", zeroTarget(10), Plan{Old: []byte("a"), New: []byte("b")}},
		{"misaligned token", zeroTarget(40), Plan{Old: []byte("a"), New: []byte("b")}},
		{"past last block", zeroTarget(32), Plan{Old: []byte("0123456789abcdefX"), New: []byte("0123456789abcdefY")}},
		{"detached iv", Target{Buf: make([]byte, 32), BlockSize: 16, Layout: crypto.LayoutIVDetached}, Plan{Old: []byte("a"), New: []byte("b")}},
	}
	for _, c := range cases {
		_, err := newChainer(o).Run(context.Background(), c.t, c.p)
		var pe *PreconditionError
		if !errors.As(err, &pe) { t.Errorf("%s: expected PreconditionError, got %v", c.name, err) }
	}
	if o.calls != 0 { t.Fatalf("precondition failures sent %d requests", o.calls) }
}

func TestNewPlanLengthMismatch(t *testing.T) {
	_, err := NewPlan("AAAA", "BBB")
	var pe *PreconditionError
	if !errors.As(err, &pe) { t.Fatalf("expected PreconditionError, got %v", err) }
	// length is counted in UTF-8 bytes
	if _, err := NewPlan("é", "ab"); err != nil { t.Fatalf("unexpected error: %v", err) }
}

func TestParseToken(t *testing.T) {
	if _, err := ParseToken(token.Std, token.Std.Encode(make([]byte, 10)), 16, crypto.LayoutIVPrefixed); err == nil { t.Fatal("expected error for 10-byte token") }
	if _, err := ParseToken(token.Std, "%%%", 16, crypto.LayoutIVPrefixed); err == nil { t.Fatal("expected error for bad base64") }
	tg, err := ParseToken(token.Std, token.Std.Encode(make([]byte, 32)), 16, crypto.LayoutIVPrefixed)
	if err != nil || len(tg.Buf) != 32 { t.Fatalf("got %d bytes, %v", len(tg.Buf), err) }
}

func TestRunDetachedLayout(t *testing.T) {
	// With the IV outside the token, plaintext byte 16 is steered by token byte 0.
	o := &countingOracle{accept: func(call int, tok []byte) bool { return tok[0] == 0x5a }}
	tg := Target{Buf: make([]byte, 32), BlockSize: 16, Layout: crypto.LayoutIVDetached}
	old := "0123456789abcdefA"
	res, err := newChainer(o).Run(context.Background(), tg, mustPlan(t, old, old[:16]+"B"))
	if err != nil { t.Fatal(err) }
	if res.Steps[0].Offset != 0 || res.Final.Bytes()[0] != 0x5a { t.Fatalf("unexpected: %+v", res.Steps[0]) }
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := &countingOracle{accept: func(call int, tok []byte) bool {
		if call == 255 { cancel() }
		return tok[call/256] == 1
	}}
	res, err := newChainer(o).Run(ctx, zeroTarget(32), mustPlan(t, "AAAA", "BBBB"))
	if !errors.Is(err, context.Canceled) { t.Fatalf("expected context.Canceled, got %v", err) }
	if errors.Is(err, ErrExhausted) { t.Fatal("cancellation reported as exhausted search") }
	if o.calls != 256 || res.Final.Committed() != 1 { t.Fatalf("calls=%d committed=%d", o.calls, res.Final.Committed()) }
}

func TestPredict(t *testing.T) {
	tg := zeroTarget(48)
	p := mustPlan(t, "user=guest;xxxxxrole=reader", "user=guest;xxxxxrole=writer")
	got, err := tg.Predict(p)
	if err != nil { t.Fatal(err) }
	for _, i := range p.Deltas() {
		if got[i] != p.Old[i]^p.New[i] { t.Fatalf("byte %d: 0x%02x", i, got[i]) }
	}
	if got[0] != 0 || got[47] != 0 { t.Fatal("untouched bytes changed") }
	if !bytes.Equal(tg.Buf, make([]byte, 48)) { t.Fatal("predict mutated the target") }
}

func TestWorkingStateCommitDoesNotAlias(t *testing.T) {
	a := newWorkingState([]byte{1, 2, 3})
	b := a.Commit(1, 9)
	if a.Bytes()[1] != 2 || b.Bytes()[1] != 9 { t.Fatalf("a=%v b=%v", a.Bytes(), b.Bytes()) }
	out := b.Bytes()
	out[0] = 7
	if b.Bytes()[0] != 1 { t.Fatal("Bytes returned an alias") }
}

func TestSnippet(t *testing.T) {
	long := ""
	for i := 0; i < 70; i++ { long += "é" }
	if got := Snippet(long); len([]rune(got)) != 60 { t.Fatalf("got %d runes", len([]rune(got))) }
	if got := Snippet("a\nb"); got != `a\nb` { t.Fatalf("got %q", got) }
}

func TestRunDeadlineShorterThanDelayIsNotExhausted(t *testing.T) {
	reached := 0
	inner := oracle.Func(func(ctx context.Context, tok []byte) oracle.Response {
		reached++
		if tok[0] == 5 { return oracle.Response{Body: ok, Status: 200} }
		return oracle.Response{Body: "denied", Status: 403}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := newChainer(oracle.Limit(inner, time.Minute)).Run(ctx, zeroTarget(32), mustPlan(t, "A", "B"))
	if errors.Is(err, ErrExhausted) { t.Fatalf("deadline reported as exhausted search: %v", err) }
	if !errors.Is(err, context.DeadlineExceeded) { t.Fatalf("expected context.DeadlineExceeded, got %v", err) }
	if reached != 1 || res.State != Aborted || res.Final.Committed() != 0 { t.Fatalf("reached=%d state=%s committed=%d", reached, res.State, res.Final.Committed()) }
}
