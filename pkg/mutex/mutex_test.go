package mutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var (
		km      KeyedMutex
		wg      sync.WaitGroup
		counter int
	)

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				km.Lock("k")
				counter++
				km.Unlock("k")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5000, counter)
	assert.Empty(t, km.locks, "idle keys are released")
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	var km KeyedMutex

	km.Lock("a")
	done := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()
	<-done
	km.Unlock("a")

	assert.Empty(t, km.locks)
}

func TestKeyedMutexUnlockUnknownPanics(t *testing.T) {
	var km KeyedMutex
	assert.Panics(t, func() { km.Unlock("nope") })
}
