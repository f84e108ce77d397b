package flip

// WorkingState is the best-known token during a run. It is a value: Commit
// returns a new state and never writes to the receiver's bytes, so a state
// handed to a caller can not change underneath it.
type WorkingState struct {
	buf       []byte
	committed int
}

func newWorkingState(buf []byte) WorkingState {
	return WorkingState{buf: clone(buf)}
}

// Commit returns the state with buf[offset] set to v.
func (s WorkingState) Commit(offset int, v byte) WorkingState {
	next := WorkingState{buf: clone(s.buf), committed: s.committed + 1}
	next.buf[offset] = v
	return next
}

// Bytes returns a copy of the token.
func (s WorkingState) Bytes() []byte { return clone(s.buf) }

// Committed is the number of positions committed so far.
func (s WorkingState) Committed() int { return s.committed }

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
