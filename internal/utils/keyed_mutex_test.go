package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	release := k.Lock("2025-07-24")

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("2025-07-24")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestKeyedMutex_DifferentKeysInParallel(t *testing.T) {
	k := NewKeyedMutex()
	a := k.Lock("HZ")
	b := k.Lock("LP")
	assert.Equal(t, 2, k.Held())
	a()
	b()
	assert.Equal(t, 0, k.Held())
}

func TestKeyedMutex_TryLock(t *testing.T) {
	k := NewKeyedMutex()

	unlock, ok := k.TryLock("2025-07-24")
	require.True(t, ok)

	_, ok = k.TryLock("2025-07-24")
	assert.False(t, ok)

	unlock()
	unlock2, ok := k.TryLock("2025-07-24")
	require.True(t, ok)
	unlock2()
	assert.Equal(t, 0, k.Held())
}

func TestKeyedMutex_ConcurrentCleanup(t *testing.T) {
	k := NewKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("shared")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.Held())
}
