package timebox

// readySignal is the one-shot "highest priority ready" notification of a
// dispatch round. release closes the channel at most once; rearm installs
// a fresh channel for the next round.
//
// Not safe for concurrent use on its own: callers hold the coordinator's
// mutex.
type readySignal struct {
	ch       chan struct{}
	released bool
}

func newReadySignal() *readySignal {
	return &readySignal{ch: make(chan struct{})}
}

// release fires the signal. Returns false if it had already fired this round.
func (s *readySignal) release() bool {
	if s.released {
		return false
	}
	s.released = true
	close(s.ch)
	return true
}

// wait returns the channel a round blocks on.
func (s *readySignal) wait() <-chan struct{} {
	return s.ch
}

// rearm prepares the signal for the next round.
func (s *readySignal) rearm() {
	if !s.released {
		return
	}
	s.ch = make(chan struct{})
	s.released = false
}
