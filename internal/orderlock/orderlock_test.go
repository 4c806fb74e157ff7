package orderlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLock_SerializesSameKey(t *testing.T) {
	k := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("o-1")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
	require.Equal(t, 0, k.Len())
}

func TestLock_DifferentKeysIndependent(t *testing.T) {
	k := New()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b") // must not block
	require.Equal(t, 2, k.Len())
	unlockA()
	unlockB()
	require.Equal(t, 0, k.Len())
}
