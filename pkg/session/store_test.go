package session

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	cfg.Logger = zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
	store, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateSession(t *testing.T) {
	t.Run("should create session with unique id", func(t *testing.T) {
		store := newTestStore(t, Config{})

		id1 := store.CreateSession()
		id2 := store.CreateSession()

		assert.NotEmpty(t, id1)
		assert.NotEmpty(t, id2)
		assert.NotEqual(t, id1, id2)
		assert.Equal(t, 2, store.Count())
	})

	t.Run("should start with empty history", func(t *testing.T) {
		store := newTestStore(t, Config{})

		id := store.CreateSession()
		sess, ok := store.GetSession(id)

		require.True(t, ok)
		assert.Equal(t, id, sess.ID)
		assert.Empty(t, sess.Messages)
		assert.False(t, sess.CreatedAt.IsZero())
	})
}

func TestGetSession(t *testing.T) {
	t.Run("should return false for unknown session", func(t *testing.T) {
		store := newTestStore(t, Config{})

		sess, ok := store.GetSession("nope")

		assert.False(t, ok)
		assert.Nil(t, sess)
	})

	t.Run("should expire session on read", func(t *testing.T) {
		store := newTestStore(t, Config{TTL: 20 * time.Millisecond})

		id := store.CreateSession()
		time.Sleep(40 * time.Millisecond)

		_, ok := store.GetSession(id)
		assert.False(t, ok)
		assert.Equal(t, 0, store.Count())
	})

	t.Run("should refresh last activity on hit", func(t *testing.T) {
		store := newTestStore(t, Config{TTL: 60 * time.Millisecond})

		id := store.CreateSession()

		// Keep touching the session past the original TTL window.
		for i := 0; i < 4; i++ {
			time.Sleep(30 * time.Millisecond)
			_, ok := store.GetSession(id)
			require.True(t, ok)
		}
	})

	t.Run("should return a copy not the live session", func(t *testing.T) {
		store := newTestStore(t, Config{})

		id := store.CreateSession()
		require.True(t, store.AddMessage(id, "user", "hello"))

		sess, ok := store.GetSession(id)
		require.True(t, ok)
		sess.Messages[0].Content = "mutated"

		again, ok := store.GetSession(id)
		require.True(t, ok)
		assert.Equal(t, "hello", again.Messages[0].Content)
	})
}

func TestAddMessage(t *testing.T) {
	t.Run("should append messages in order", func(t *testing.T) {
		store := newTestStore(t, Config{})

		id := store.CreateSession()
		require.True(t, store.AddMessage(id, "user", "question"))
		require.True(t, store.AddMessage(id, "assistant", "answer"))

		sess, ok := store.GetSession(id)
		require.True(t, ok)
		require.Len(t, sess.Messages, 2)
		assert.Equal(t, "user", sess.Messages[0].Role)
		assert.Equal(t, "question", sess.Messages[0].Content)
		assert.Equal(t, "assistant", sess.Messages[1].Role)
	})

	t.Run("should return false for unknown session", func(t *testing.T) {
		store := newTestStore(t, Config{})

		assert.False(t, store.AddMessage("nope", "user", "hello"))
	})

	t.Run("should trim oldest messages past the cap", func(t *testing.T) {
		store := newTestStore(t, Config{MaxMessages: 3})

		id := store.CreateSession()
		for i := 0; i < 5; i++ {
			require.True(t, store.AddMessage(id, "user", fmt.Sprintf("msg-%d", i)))
		}

		sess, ok := store.GetSession(id)
		require.True(t, ok)
		require.Len(t, sess.Messages, 3)
		assert.Equal(t, "msg-2", sess.Messages[0].Content)
		assert.Equal(t, "msg-4", sess.Messages[2].Content)
	})

	t.Run("should reject writes to an expired session", func(t *testing.T) {
		store := newTestStore(t, Config{TTL: 20 * time.Millisecond})

		id := store.CreateSession()
		time.Sleep(40 * time.Millisecond)

		assert.False(t, store.AddMessage(id, "user", "too late"))
	})
}

func TestDeleteSession(t *testing.T) {
	t.Run("should delete existing session", func(t *testing.T) {
		store := newTestStore(t, Config{})

		id := store.CreateSession()
		assert.True(t, store.DeleteSession(id))

		_, ok := store.GetSession(id)
		assert.False(t, ok)
	})

	t.Run("should return false for unknown session", func(t *testing.T) {
		store := newTestStore(t, Config{})

		assert.False(t, store.DeleteSession("nope"))
	})
}

func TestSessionCap(t *testing.T) {
	t.Run("should evict least recently active session past the cap", func(t *testing.T) {
		store := newTestStore(t, Config{MaxSessions: 2})

		first := store.CreateSession()
		time.Sleep(2 * time.Millisecond)
		second := store.CreateSession()
		time.Sleep(2 * time.Millisecond)
		third := store.CreateSession()

		assert.Equal(t, 2, store.Count())

		_, ok := store.GetSession(first)
		assert.False(t, ok, "oldest session should have been evicted")
		_, ok = store.GetSession(second)
		assert.True(t, ok)
		_, ok = store.GetSession(third)
		assert.True(t, ok)
	})

	t.Run("should keep recently touched sessions", func(t *testing.T) {
		store := newTestStore(t, Config{MaxSessions: 2})

		first := store.CreateSession()
		time.Sleep(2 * time.Millisecond)
		second := store.CreateSession()
		time.Sleep(2 * time.Millisecond)

		// Touching first makes second the eviction candidate.
		_, ok := store.GetSession(first)
		require.True(t, ok)
		time.Sleep(2 * time.Millisecond)

		store.CreateSession()

		_, ok = store.GetSession(first)
		assert.True(t, ok)
		_, ok = store.GetSession(second)
		assert.False(t, ok)
	})
}

func TestSweep(t *testing.T) {
	t.Run("should remove expired sessions", func(t *testing.T) {
		store := newTestStore(t, Config{TTL: 20 * time.Millisecond, SweepInterval: time.Hour})

		store.CreateSession()
		store.CreateSession()
		time.Sleep(40 * time.Millisecond)
		fresh := store.CreateSession()

		store.Sweep()

		assert.Equal(t, 1, store.Count())
		_, ok := store.GetSession(fresh)
		assert.True(t, ok)
	})
}

func TestClose(t *testing.T) {
	t.Run("should clear all sessions", func(t *testing.T) {
		store := newTestStore(t, Config{})

		store.CreateSession()
		require.NoError(t, store.Close())

		assert.Equal(t, 0, store.Count())
	})

	t.Run("should be idempotent", func(t *testing.T) {
		store := newTestStore(t, Config{})

		require.NoError(t, store.Close())
		require.NoError(t, store.Close())
	})
}
