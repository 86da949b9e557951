package random

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocked_SeedIsReproducible(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Intn(100), b.Intn(100))
	}
}

func TestLocked_Bounds(t *testing.T) {
	r := New(7)
	assert.Equal(t, 0, r.Intn(0))
	assert.Equal(t, 0, r.Intn(-3))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v := r.Intn(5)
				assert.True(t, v >= 0 && v < 5)
			}
		}()
	}
	wg.Wait()
}

func TestSequence(t *testing.T) {
	s := NewSequence(1, 5, -2)
	assert.Equal(t, 1, s.Intn(4))
	assert.Equal(t, 1, s.Intn(4))
	assert.Equal(t, 2, s.Intn(4))
	assert.Equal(t, 1, s.Intn(4), "wraps around")

	assert.Equal(t, 0, NewSequence().Intn(3))
}

func TestPick(t *testing.T) {
	assert.Equal(t, "", Pick(NewSequence(0), nil))
	assert.Equal(t, "c", Pick(NewSequence(2), []string{"a", "b", "c"}))
}
