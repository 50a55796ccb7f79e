package sessions

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStore_SetGet(t *testing.T) {
	s := New(0)

	assert.Equal(t, Idle, s.Get(1))

	s.Set(1, AwaitingTerm)
	assert.Equal(t, AwaitingTerm, s.Get(1))
	assert.Equal(t, Idle, s.Get(2))
	assert.Equal(t, 1, s.Len())

	s.Set(1, Idle)
	assert.Equal(t, Idle, s.Get(1))
	assert.Equal(t, 0, s.Len())
}

func TestStore_GetAndClearIf(t *testing.T) {
	s := New(0)
	s.Set(7, AwaitingDeleteTarget)

	assert.False(t, s.GetAndClearIf(7, AwaitingTerm))
	assert.Equal(t, AwaitingDeleteTarget, s.Get(7))

	assert.True(t, s.GetAndClearIf(7, AwaitingDeleteTarget))
	assert.Equal(t, Idle, s.Get(7))
	assert.False(t, s.GetAndClearIf(7, AwaitingDeleteTarget))
}

func TestStore_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New(time.Minute)
	s.now = func() time.Time { return now }

	s.Set(3, AwaitingTerm)
	now = now.Add(30 * time.Second)
	assert.Equal(t, AwaitingTerm, s.Get(3))

	now = now.Add(time.Minute)
	assert.Equal(t, Idle, s.Get(3))
	assert.False(t, s.GetAndClearIf(3, AwaitingTerm))
	assert.Equal(t, 0, s.Len())
}

func TestStore_Concurrent(t *testing.T) {
	s := New(0)
	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Set(id, AwaitingTerm)
			_ = s.Get(id)
			s.Delete(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, s.Len())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "awaiting_term", AwaitingTerm.String())
	assert.Equal(t, "awaiting_delete_target", AwaitingDeleteTarget.String())
}
