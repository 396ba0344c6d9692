package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newMember(id string) *Member {
	return &Member{ConnectionID: id, UserID: id, Send: make(chan []byte, 4)}
}

func TestManagerJoinCreatesRoomOnFirstMember(t *testing.T) {
	mgr := NewManager()
	_, ok := mgr.Get("canvas-1")
	assert.False(t, ok)

	m := newMember("conn-1")
	r, count := mgr.Join("canvas-1", m)
	assert.Equal(t, 1, count)
	assert.Equal(t, "canvas-1", r.canvasID)

	_, ok = mgr.Get("canvas-1")
	assert.True(t, ok)
}

func TestManagerLeaveDestroysEmptyRoom(t *testing.T) {
	mgr := NewManager()
	m1 := newMember("conn-1")
	m2 := newMember("conn-2")
	mgr.Join("canvas-1", m1)
	mgr.Join("canvas-1", m2)

	remaining := mgr.Leave("canvas-1", m1)
	assert.Equal(t, 1, remaining)
	_, ok := mgr.Get("canvas-1")
	assert.True(t, ok, "room survives while a member remains")

	remaining = mgr.Leave("canvas-1", m2)
	assert.Equal(t, 0, remaining)
	_, ok = mgr.Get("canvas-1")
	assert.False(t, ok, "room is destroyed once empty")
}

func TestBroadcastExcludesSender(t *testing.T) {
	mgr := NewManager()
	sender := newMember("conn-sender")
	other := newMember("conn-other")
	r, _ := mgr.Join("canvas-1", sender)
	mgr.Join("canvas-1", other)

	r.Broadcast([]byte("hello"), sender)

	select {
	case msg := <-other.Send:
		assert.Equal(t, "hello", string(msg))
	default:
		t.Fatal("expected other member to receive broadcast")
	}

	select {
	case <-sender.Send:
		t.Fatal("sender should not receive its own broadcast")
	default:
	}
}

func TestBroadcastDropsSlowMemberInsteadOfBlocking(t *testing.T) {
	mgr := NewManager()
	slow := newMember("conn-slow")
	slow.Send = make(chan []byte) // unbuffered, always full for a non-blocking send
	r, _ := mgr.Join("canvas-1", slow)

	done := make(chan struct{})
	go func() {
		r.Broadcast([]byte("x"), nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow member instead of dropping it")
	}

	assert.True(t, r.Empty(), "slow member should have been removed")

	_, ok := mgr.Get("canvas-1")
	assert.False(t, ok, "manager should drop the room once backpressure empties it")

	select {
	case _, open := <-slow.Send:
		assert.Fail(t, "broadcast must never close a member's send channel, it doesn't own it", "open=%v", open)
	default:
		// channel remains open with nothing buffered, as expected
	}
}
