package flip

import (
	"context"
	"fmt"

	"cbcflip/pkg/logx"
)

// State of a run.
type State string

const (
	Initial   State = "INITIAL"
	Searching State = "SEARCHING"
	Committed State = "COMMITTED"
	Finalized State = "FINALIZED"
	Aborted   State = "ABORTED"
)

// Selector picks the candidate to commit; it returns an index into cands.
// It is only called with a non-empty slice.
type Selector func(cands []Candidate) int

// FirstMatch commits the lowest successful byte value.
func FirstMatch([]Candidate) int { return 0 }

// Step records one processed plaintext position.
type Step struct {
	Index      int
	Offset     int
	Old        byte
	New        byte
	Expected   byte
	Candidates []Candidate
	Chosen     int // index into Candidates, -1 when none
}

// ChosenCandidate returns the committed candidate, if any.
func (s Step) ChosenCandidate() (Candidate, bool) {
	if s.Chosen < 0 || s.Chosen >= len(s.Candidates) {
		return Candidate{}, false
	}
	return s.Candidates[s.Chosen], true
}

// Result is the outcome of a run. Final holds the last committed token,
// which is the tampered token when State is Finalized.
type Result struct {
	State State
	Steps []Step
	Final WorkingState
}

// Chainer drives a Searcher over every differing byte of a Plan.
type Chainer struct {
	Searcher *Searcher
	Select   Selector
}

// Run flips each differing byte in ascending order, committing the selected
// candidate before moving on. It never retries a committed position. When a
// position has no candidate the run stops with an *ExhaustedError and the
// returned Result carries the partial state.
func (c *Chainer) Run(ctx context.Context, t Target, p Plan) (*Result, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	offsets, err := t.Offsets(p)
	if err != nil {
		return nil, err
	}
	sel := c.Select
	if sel == nil {
		sel = FirstMatch
	}
	obs := c.Searcher.observer()

	res := &Result{State: Initial}
	st := newWorkingState(t.Buf)
	for _, i := range p.Deltas() {
		if err := ctx.Err(); err != nil {
			res.Final = st
			return res, fmt.Errorf("byte %d: %w", i, err)
		}
		var step Step
		res.State = Searching
		st, step, err = c.step(ctx, st, p, i, offsets[i], sel, obs)
		res.Steps = append(res.Steps, step)
		if err != nil {
			res.State = Aborted
			res.Final = st
			return res, err
		}
		res.State = Committed
	}
	res.State = Finalized
	res.Final = st
	return res, nil
}

func (c *Chainer) step(ctx context.Context, st WorkingState, p Plan, i, off int, sel Selector, obs Observer) (WorkingState, Step, error) {
	cur := st.buf[off]
	step := Step{
		Index:    i,
		Offset:   off,
		Old:      p.Old[i],
		New:      p.New[i],
		Expected: cur ^ p.Old[i] ^ p.New[i],
		Chosen:   -1,
	}
	logx.Infof("byte %d: old=0x%02x new=0x%02x offset=%d, brute forcing 0..255", i, step.Old, step.New, off)
	obs.PositionStarted(i, off)
	step.Candidates = c.Searcher.Search(ctx, st.buf, i, off)
	if len(step.Candidates) == 0 {
		if err := ctx.Err(); err != nil {
			obs.PositionDone(step)
			return st, step, fmt.Errorf("byte %d: %w", i, err)
		}
		logx.Warnf("byte %d: none of 256 candidates matched", i)
		obs.PositionDone(step)
		return st, step, &ExhaustedError{Index: i, Offset: off, Partial: st}
	}
	step.Chosen = sel(step.Candidates)
	if step.Chosen < 0 || step.Chosen >= len(step.Candidates) {
		step.Chosen = 0
	}
	chosen := step.Candidates[step.Chosen]
	logx.Infof("byte %d: %d candidate(s), committing 0x%02x (status %d)", i, len(step.Candidates), chosen.Value, chosen.Status)
	obs.PositionDone(step)
	return st.Commit(off, chosen.Value), step, nil
}
