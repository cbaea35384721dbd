package timebox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultBox_GetBeforeSet(t *testing.T) {
	b := NewResultBox[int]()
	v, ok := b.Get()
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestResultBox_SingleAssignment(t *testing.T) {
	b := NewResultBox[string]()
	assert.True(t, b.Set("first"))
	assert.False(t, b.Set("second"))

	v, ok := b.Get()
	assert.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestResultBox_ConcurrentSet(t *testing.T) {
	b := NewResultBox[int]()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if b.Set(i) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	_, ok := b.Get()
	assert.True(t, ok)
}
