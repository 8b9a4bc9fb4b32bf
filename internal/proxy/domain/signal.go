package domain

// Signal is what a single heuristic reports back to the admission engine.
// A zero Signal means the check did not fire. Err carries an internal failure
// that was absorbed as a zero contribution; it is kept for logging only.
type Signal struct {
	Score  float64
	Reason string
	Err    error
}

// Fired reports whether the check contributed to the score.
func (s Signal) Fired() bool { return s.Score > 0 || s.Reason != "" }

// NoSignal is returned by checks that did not fire.
func NoSignal() Signal { return Signal{} }

// Inconclusive wraps an internal error as a zero contribution.
func Inconclusive(err error) Signal { return Signal{Err: err} }
