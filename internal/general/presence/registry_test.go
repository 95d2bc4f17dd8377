package presence

import (
	"sync"
	"testing"

	"move-market/internal/general/logger"

	"github.com/stretchr/testify/assert"
)

func newTestRegistry() *Registry {
	return NewRegistry(logger.New("presence-test"))
}

func TestMarkOnlineAndOffline(t *testing.T) {
	reg := newTestRegistry()

	assert.False(t, reg.IsOnline("d1"))

	reg.MarkOnline("d1")
	assert.True(t, reg.IsOnline("d1"))
	assert.Equal(t, 1, reg.Count())

	reg.MarkOffline("d1")
	assert.False(t, reg.IsOnline("d1"))
	assert.Equal(t, 0, reg.Count())
}

func TestSecondConnectionKeepsDriverOnline(t *testing.T) {
	reg := newTestRegistry()

	reg.MarkOnline("d1")
	reg.MarkOnline("d1") // second device

	reg.MarkOffline("d1")
	assert.True(t, reg.IsOnline("d1"), "one live session remains")

	reg.MarkOffline("d1")
	assert.False(t, reg.IsOnline("d1"))
}

func TestMarkOfflineUnknownDriverIsNoop(t *testing.T) {
	reg := newTestRegistry()

	reg.MarkOffline("ghost")
	assert.False(t, reg.IsOnline("ghost"))
	assert.Equal(t, 0, reg.Count())

	// a later online/offline cycle is unaffected by the earlier no-op
	reg.MarkOnline("ghost")
	assert.True(t, reg.IsOnline("ghost"))
	reg.MarkOffline("ghost")
	assert.False(t, reg.IsOnline("ghost"))
}

func TestEmptyDriverIDIgnored(t *testing.T) {
	reg := newTestRegistry()

	reg.MarkOnline("")
	assert.Equal(t, 0, reg.Count())
}

func TestListOnlineReturnsSnapshot(t *testing.T) {
	reg := newTestRegistry()

	reg.MarkOnline("d1")
	reg.MarkOnline("d2")

	ids := reg.ListOnline()
	assert.ElementsMatch(t, []string{"d1", "d2"}, ids)

	// mutating the snapshot must not affect the registry
	ids[0] = "zz"
	assert.True(t, reg.IsOnline("d1"))
}

func TestConcurrentSessions(t *testing.T) {
	reg := newTestRegistry()

	const goroutines = 32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			reg.MarkOnline("d1")
			reg.MarkOffline("d1")
			reg.MarkOnline("d1")
		}()
	}
	wg.Wait()

	// each goroutine nets exactly one live session
	assert.True(t, reg.IsOnline("d1"))

	for i := 0; i < goroutines; i++ {
		reg.MarkOffline("d1")
	}
	assert.False(t, reg.IsOnline("d1"))
}
