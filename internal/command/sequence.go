package command

import "sync"

// Sequence issues the one-byte command id carried at index 30 of sequenced
// commands. Each appliance owns one Sequence so that concurrent sessions to
// different appliances never share ids.
type Sequence struct {
	mu sync.Mutex
	n  uint8
}

// Next increments the counter and returns the new value. Wraps at 256.
func (s *Sequence) Next() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

// Reset sets the counter so that the next command carries value+1.
func (s *Sequence) Reset(value uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = value
}
