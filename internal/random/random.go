// Package random provides the injectable randomness used for style
// selection, reasoning text and placeholder ornamentation.
package random

import (
	"math/rand"
	"sync"
	"time"
)

// Source picks integers in [0, n).
type Source interface {
	Intn(n int) int
}

// Locked is a math/rand source safe for concurrent use.
type Locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a seeded source. A zero seed uses the current time.
func New(seed int64) *Locked {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Locked{rng: rand.New(rand.NewSource(seed))}
}

// Intn returns a pseudo-random integer in [0, n). It returns 0 for n <= 0.
func (l *Locked) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}

// Sequence replays fixed values, wrapping around, each reduced modulo n.
// An empty sequence always yields 0. It is meant for tests that need
// reproducible choices.
type Sequence struct {
	mu     sync.Mutex
	values []int
	pos    int
}

// NewSequence returns a Sequence over values.
func NewSequence(values ...int) *Sequence {
	return &Sequence{values: values}
}

// Intn returns the next value modulo n.
func (s *Sequence) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.pos%len(s.values)]
	s.pos++
	if v < 0 {
		v = -v
	}
	return v % n
}

// Pick returns a random element of options, or "" if there are none.
func Pick(src Source, options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[src.Intn(len(options))]
}
