package health

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignal_DefaultsToHealthy(t *testing.T) {
	t.Parallel()

	assert.True(t, NewSignal().IsHealthy())

	var zero Signal
	assert.Equal(t, Healthy, zero.Get())
}

func TestSignal_SetAndGet(t *testing.T) {
	t.Parallel()

	s := NewSignal()
	s.Set(Unhealthy)
	assert.Equal(t, Unhealthy, s.Get())
	assert.False(t, s.IsHealthy())

	s.Set(Healthy)
	assert.True(t, s.IsHealthy())
}

func TestSignal_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := NewSignal()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.Set(Unhealthy)
			} else {
				s.Set(Healthy)
			}
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Get()
		}()
	}
	wg.Wait()

	assert.Contains(t, []State{Healthy, Unhealthy}, s.Get())
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Healthy", Healthy.String())
	assert.Equal(t, "Unhealthy", Unhealthy.String())
	assert.Equal(t, "Unknown", State(42).String())
}
