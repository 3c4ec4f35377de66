// ABOUTME: Tests for session registration, heartbeat refresh, listing, and expiry.
// ABOUTME: Covers the full agent/controller round trip and eviction cascades.

package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	r := New(opts)
	t.Cleanup(r.Close)
	return r
}

func TestRegister_NewSession(t *testing.T) {
	r := newTestRegistry(t, Options{})

	id, resumed := r.Register("", "203.0.113.7")
	assert.False(t, resumed)
	assert.Len(t, id, DefaultTokenLen)
	assert.True(t, r.Exists(id))
}

func TestRegister_UnknownRequestedIDCreatesFresh(t *testing.T) {
	r := newTestRegistry(t, Options{})

	id, resumed := r.Register("deadbeef", "203.0.113.7")
	assert.False(t, resumed)
	assert.NotEqual(t, "deadbeef", id)
	assert.False(t, r.Exists("deadbeef"))
}

func TestRegister_ResumeRefreshesInsteadOfDuplicating(t *testing.T) {
	r := newTestRegistry(t, Options{})

	id, _ := r.Register("", "203.0.113.7")
	_, err := r.Enqueue(id, "shell", "whoami")
	require.NoError(t, err)

	// Re-registration keeps the identifier and the queued work.
	again, resumed := r.Register(id, "198.51.100.2")
	assert.True(t, resumed)
	assert.Equal(t, id, again)
	assert.Len(t, r.List(), 1)

	cmd, err := r.DequeueOne(id)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "whoami", cmd.Params)

	// Last write wins on the reported address.
	infos := r.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "198.51.100.2", infos[0].Addr)
}

func TestTouch(t *testing.T) {
	r := newTestRegistry(t, Options{})

	id, _ := r.Register("", "203.0.113.7")
	assert.True(t, r.Touch(id))
	assert.False(t, r.Touch("nope1234"))
}

func TestList_ReportsIdleSeconds(t *testing.T) {
	r := newTestRegistry(t, Options{})

	id, _ := r.Register("", "203.0.113.7")
	infos := r.List()
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].ID)
	assert.Equal(t, "203.0.113.7", infos[0].Addr)
	assert.LessOrEqual(t, infos[0].IdleSeconds, 1)
}

func TestList_SweepsExpiredSessions(t *testing.T) {
	r := newTestRegistry(t, Options{TTL: 20 * time.Millisecond})

	stale, _ := r.Register("", "203.0.113.7")
	cmdID, err := r.Enqueue(stale, "shell", "id")
	require.NoError(t, err)
	require.NoError(t, r.SetResult(stale, cmdID, "uid=0"))

	time.Sleep(40 * time.Millisecond)
	fresh, _ := r.Register("", "198.51.100.2")

	infos := r.List()
	require.Len(t, infos, 1)
	assert.Equal(t, fresh, infos[0].ID)

	// Eviction cascades: the swept session's state is unreachable.
	assert.False(t, r.Exists(stale))
	assert.Empty(t, r.ChatHistory(stale))
	_, ok := r.LatestFrame(stale)
	assert.False(t, ok)

	// The result owner index is purged with the session, so the stale
	// result reports pending rather than being served.
	_, ok = r.ConsumeResult(cmdID)
	assert.False(t, ok)
}

func TestTouch_KeepsSessionAlive(t *testing.T) {
	r := newTestRegistry(t, Options{TTL: 50 * time.Millisecond})

	id, _ := r.Register("", "203.0.113.7")
	for range 4 {
		time.Sleep(25 * time.Millisecond)
		require.True(t, r.Touch(id))
	}
	assert.True(t, r.Exists(id))
	assert.Len(t, r.List(), 1)
}

func TestBackgroundSweeper(t *testing.T) {
	r := newTestRegistry(t, Options{
		TTL:           20 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})

	id, _ := r.Register("", "203.0.113.7")
	require.True(t, r.Exists(id))

	// Eviction happens without any List call.
	assert.Eventually(t, func() bool {
		return !r.Exists(id)
	}, time.Second, 5*time.Millisecond)
}

// TestCommandRoundTrip walks the whole agent/controller exchange:
// register, enqueue, poll, report, consume.
func TestCommandRoundTrip(t *testing.T) {
	r := newTestRegistry(t, Options{})

	id, _ := r.Register("", "203.0.113.7")

	cmdID, err := r.Enqueue(id, "shell", "whoami")
	require.NoError(t, err)
	assert.Len(t, cmdID, DefaultTokenLen)

	cmd, err := r.DequeueOne(id)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, Command{ID: cmdID, Type: "shell", Params: "whoami"}, *cmd)

	// Nothing left to poll.
	cmd, err = r.DequeueOne(id)
	require.NoError(t, err)
	assert.Nil(t, cmd)

	require.NoError(t, r.SetResult(id, cmdID, "root"))

	payload, ok := r.ConsumeResult(cmdID)
	assert.True(t, ok)
	assert.Equal(t, "root", payload)

	// Exactly-once consumption.
	_, ok = r.ConsumeResult(cmdID)
	assert.False(t, ok)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newTestRegistry(t, Options{})

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, _ := r.Register("", fmt.Sprintf("10.0.0.%d", n))
			for j := range 50 {
				cmdID, err := r.Enqueue(id, "shell", fmt.Sprintf("job-%d", j))
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := r.DequeueOne(id); err != nil {
					t.Error(err)
					return
				}
				if err := r.SetResult(id, cmdID, "done"); err != nil {
					t.Error(err)
					return
				}
				if _, ok := r.ConsumeResult(cmdID); !ok {
					t.Errorf("result %s lost", cmdID)
					return
				}
				r.PushFrame(id, []byte{byte(j)})
				r.List()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.List(), 16)
}

func TestTokenLenOption(t *testing.T) {
	r := newTestRegistry(t, Options{TokenLen: 16})

	id, _ := r.Register("", "203.0.113.7")
	assert.Len(t, id, 16)

	cmdID, err := r.Enqueue(id, "shell", "uptime")
	require.NoError(t, err)
	assert.Len(t, cmdID, 16)
}
