// ABOUTME: Tests for result reporting and consume-once retrieval.
// ABOUTME: Validates last-write-wins, pending states, and global command addressing.

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetResult_UnknownSession(t *testing.T) {
	r := newTestRegistry(t, Options{})

	err := r.SetResult("ghost123", "cmd12345", "out")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConsumeResult_PendingBeforeSet(t *testing.T) {
	r := newTestRegistry(t, Options{})
	id, _ := r.Register("", "203.0.113.7")

	cmdID, err := r.Enqueue(id, "shell", "uname -a")
	require.NoError(t, err)

	// Issued but unanswered commands report pending, and stay consumable
	// once the result finally lands.
	_, ok := r.ConsumeResult(cmdID)
	assert.False(t, ok)

	require.NoError(t, r.SetResult(id, cmdID, "Linux"))
	payload, ok := r.ConsumeResult(cmdID)
	assert.True(t, ok)
	assert.Equal(t, "Linux", payload)
}

func TestConsumeResult_UnknownCommand(t *testing.T) {
	r := newTestRegistry(t, Options{})

	_, ok := r.ConsumeResult("deadbeef")
	assert.False(t, ok)
}

func TestSetResult_LastWriteWins(t *testing.T) {
	r := newTestRegistry(t, Options{})
	id, _ := r.Register("", "203.0.113.7")

	cmdID, err := r.Enqueue(id, "shell", "date")
	require.NoError(t, err)

	require.NoError(t, r.SetResult(id, cmdID, "first"))
	require.NoError(t, r.SetResult(id, cmdID, "second"))

	payload, ok := r.ConsumeResult(cmdID)
	assert.True(t, ok)
	assert.Equal(t, "second", payload)
}

func TestConsumeResult_GloballyAddressed(t *testing.T) {
	r := newTestRegistry(t, Options{})

	// Results from several sessions are all consumable by command id
	// alone, without naming the owning session.
	type pair struct{ cmdID, payload string }
	var pairs []pair
	for i := range 3 {
		id, _ := r.Register("", "203.0.113.7")
		cmdID, err := r.Enqueue(id, "shell", "hostname")
		require.NoError(t, err)
		payload := string(rune('a' + i))
		require.NoError(t, r.SetResult(id, cmdID, payload))
		pairs = append(pairs, pair{cmdID, payload})
	}

	// Consume in reverse order to make sure lookup is by id, not scan
	// position.
	for i := len(pairs) - 1; i >= 0; i-- {
		payload, ok := r.ConsumeResult(pairs[i].cmdID)
		assert.True(t, ok)
		assert.Equal(t, pairs[i].payload, payload)
	}
}

func TestSetResult_UnsolicitedCommandID(t *testing.T) {
	r := newTestRegistry(t, Options{})
	id, _ := r.Register("", "203.0.113.7")

	// Upload flows report results for command ids the agent supplies;
	// the store accepts them even without a matching enqueue.
	require.NoError(t, r.SetResult(id, "upload01", "FILE_UPLOADED:report.txt"))

	payload, ok := r.ConsumeResult("upload01")
	assert.True(t, ok)
	assert.Equal(t, "FILE_UPLOADED:report.txt", payload)
}

func TestResultAndQueueAreIndependent(t *testing.T) {
	r := newTestRegistry(t, Options{})
	id, _ := r.Register("", "203.0.113.7")

	cmdID, err := r.Enqueue(id, "shell", "pwd")
	require.NoError(t, err)

	// Result can land before the command is ever dequeued.
	require.NoError(t, r.SetResult(id, cmdID, "/root"))

	payload, ok := r.ConsumeResult(cmdID)
	assert.True(t, ok)
	assert.Equal(t, "/root", payload)

	// The command is still queued: the two structures are independent.
	cmd, err := r.DequeueOne(id)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, cmdID, cmd.ID)
}
