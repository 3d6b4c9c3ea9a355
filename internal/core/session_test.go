package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry_Defaults(t *testing.T) {
	reg := NewSessionRegistry()

	sess, created := reg.Get(42)
	assert.True(t, created)
	assert.Equal(t, DefaultPersonality, sess.Personality())
	assert.Equal(t, DefaultVoice, sess.Voice())
	assert.False(t, sess.Verified())

	again, created := reg.Get(42)
	assert.False(t, created)
	assert.Same(t, sess, again)
}

func TestSession_ResetKeepsVerification(t *testing.T) {
	sess := newSession()
	sess.SetPersonality("spiritual")
	sess.SetVoice("Puck")
	sess.MarkVerified()

	sess.Reset()

	assert.Equal(t, DefaultPersonality, sess.Personality())
	assert.Equal(t, DefaultVoice, sess.Voice())
	assert.True(t, sess.Verified())
}

func TestSessionRegistry_Concurrent(t *testing.T) {
	reg := NewSessionRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			sess, _ := reg.Get(id % 5)
			sess.SetVoice("Leda")
		}(int64(i))
	}
	wg.Wait()
	assert.Equal(t, 5, reg.Len())
}

func TestSessionRegistry_EvictsLeastRecentlyUsed(t *testing.T) {
	reg := newSessionRegistry(2)

	first, _ := reg.Get(1)
	first.SetVoice("Puck")
	reg.Get(2)
	reg.Get(1) // 2 is now the oldest
	reg.Get(3)

	assert.Equal(t, 2, reg.Len())
	again, created := reg.Get(1)
	assert.False(t, created)
	assert.Same(t, first, again)

	evicted, created := reg.Get(2)
	assert.True(t, created)
	assert.Equal(t, DefaultVoice, evicted.Voice())
}

func TestLookupVoice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"kore", "Kore", true},
		{"PUCK", "Puck", true},
		{" Vindemiatrix ", "Vindemiatrix", true},
		{"alloy", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := LookupVoice(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
