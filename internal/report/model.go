package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"cbcflip/internal/flip"
)

type Candidate struct {
	Value   string `json:"value"`
	Status  int    `json:"status"`
	Snippet string `json:"snippet"`
	Token   string `json:"token"`
}

type Position struct {
	Index      int         `json:"index"`
	Offset     int         `json:"offset"`
	Old        string      `json:"old"`
	New        string      `json:"new"`
	Expected   string      `json:"expected"`
	Candidates []Candidate `json:"candidates"`
	Chosen     string      `json:"chosen,omitempty"`
}

type Run struct {
	RunID       string              `json:"run_id"`
	Target      string              `json:"target"`
	Params      map[string][]string `json:"params,omitempty"`
	Cookie      string              `json:"cookie"`
	Success     string              `json:"success_substring"`
	BlockSize   int                 `json:"block_size"`
	Layout      string              `json:"layout"`
	State       flip.State          `json:"state"`
	Positions   []Position          `json:"positions"`
	Requests    int64               `json:"requests"`
	FinalToken  string              `json:"final_token,omitempty"`
	FinalStatus int                 `json:"final_status,omitempty"`
	FinalBody   string              `json:"final_body,omitempty"`
	Error       string              `json:"error,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
}

type Results struct {
	Runs        []Run     `json:"runs"`
	Notes       []string  `json:"notes,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewRun starts a run record with a fresh id.
func NewRun(target string) Run {
	return Run{RunID: uuid.NewString(), Target: target, State: flip.Initial, StartedAt: time.Now().UTC()}
}

func (r *Results) Add(run Run) { r.Runs = append(r.Runs, run) }

// HasFailures reports whether any run ended without a finalized token.
func (r *Results) HasFailures() bool {
	for _, run := range r.Runs {
		if run.State != flip.Finalized { return true }
	}
	return false
}

// HexByte formats b as 0xNN.
func HexByte(b byte) string { return fmt.Sprintf("0x%02x", b) }

// Positions converts chain steps into report rows.
func Positions(steps []flip.Step) []Position {
	out := make([]Position, 0, len(steps))
	for _, s := range steps {
		p := Position{
			Index:      s.Index,
			Offset:     s.Offset,
			Old:        HexByte(s.Old),
			New:        HexByte(s.New),
			Expected:   HexByte(s.Expected),
			Candidates: make([]Candidate, 0, len(s.Candidates)),
		}
		for _, c := range s.Candidates {
			p.Candidates = append(p.Candidates, Candidate{Value: HexByte(c.Value), Status: c.Status, Snippet: c.Snippet, Token: c.Token})
		}
		if c, ok := s.ChosenCandidate(); ok { p.Chosen = HexByte(c.Value) }
		out = append(out, p)
	}
	return out
}
