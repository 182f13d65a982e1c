package presence

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id, user string

	mu         sync.Mutex
	sent       [][]byte
	closedWith int
	full       bool
}

func newFake(id, user string) *fakeConn { return &fakeConn{id: id, user: user} }

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.user }

func (f *fakeConn) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.closedWith != 0 {
		return errors.New("closed")
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeConn) Close(code int, _ string) {
	f.mu.Lock()
	f.closedWith = code
	f.mu.Unlock()
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestRegisterUnregisterLifecycle(t *testing.T) {
	r := NewRegistry()
	a := newFake("c1", "alice")

	assert.True(t, r.Register(a))
	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID())

	assert.True(t, r.Unregister(a))
	_, ok = r.Lookup("alice")
	assert.False(t, ok)
	assert.False(t, r.Unregister(a), "second unregister reports nothing")
}

func TestNewerConnectionReplacesOlder(t *testing.T) {
	r := NewRegistry()
	old := newFake("c1", "alice")
	fresh := newFake("c2", "alice")

	assert.True(t, r.Register(old))
	require.True(t, r.Join(7, old))
	assert.False(t, r.Register(fresh), "user was already online")

	assert.Equal(t, CloseSessionReplaced, old.closedWith)
	assert.False(t, r.Subscribed(7, old))

	got, _ := r.Lookup("alice")
	assert.Equal(t, "c2", got.ID())

	// The replaced socket's teardown must not take the user offline.
	assert.False(t, r.Unregister(old))
	assert.True(t, r.Online("alice"))
	assert.True(t, r.Unregister(fresh))
	assert.False(t, r.Online("alice"))
}

func TestJoinRequiresRegistration(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Join(1, newFake("c1", "alice")))
}

func TestBroadcastDeduplicatesSubscribersAndUsers(t *testing.T) {
	r := NewRegistry()
	a := newFake("c1", "alice")
	b := newFake("c2", "bob")
	c := newFake("c3", "carol")
	for _, conn := range []*fakeConn{a, b, c} {
		r.Register(conn)
	}
	r.Join(5, a)
	r.Join(5, b)

	n := r.Broadcast(5, []byte("x"), "alice", "bob")
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 0, c.count())

	r.Leave(5, b)
	assert.Equal(t, 1, r.Broadcast(5, []byte("y")))
	assert.Equal(t, 1, b.count())
}

func TestBroadcastAllSkipsUserAndCountsFailures(t *testing.T) {
	r := NewRegistry()
	a := newFake("c1", "alice")
	b := newFake("c2", "bob")
	c := newFake("c3", "carol")
	c.full = true
	for _, conn := range []*fakeConn{a, b, c} {
		r.Register(conn)
	}

	assert.Equal(t, 1, r.BroadcastAll([]byte("online"), "alice"))
	assert.Equal(t, 0, a.count())
	assert.Equal(t, 1, b.count())
}

func TestSendToUser(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.SendToUser("nobody", []byte("x")))

	a := newFake("c1", "alice")
	r.Register(a)
	assert.True(t, r.SendToUser("alice", []byte("x")))
	assert.Equal(t, 1, a.count())
}

func TestCloseClearsEverything(t *testing.T) {
	r := NewRegistry()
	a := newFake("c1", "alice")
	r.Register(a)
	r.Join(1, a)

	r.Close()
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 1001, a.closedWith)
	assert.False(t, r.Subscribed(1, a))
}

func TestConcurrentRegistration(t *testing.T) {
	r := NewRegistry()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		online  int
		offline int
	)
	for u := 0; u < 10; u++ {
		for c := 0; c < 10; c++ {
			wg.Add(1)
			go func(u, c int) {
				defer wg.Done()
				conn := newFake(fmt.Sprintf("u%d-c%d", u, c), fmt.Sprintf("u%d", u))
				on := r.Register(conn)
				r.Join(int64(u), conn)
				r.Broadcast(int64(u), []byte("m"))
				off := r.Unregister(conn)
				mu.Lock()
				if on {
					online++
				}
				if off {
					offline++
				}
				mu.Unlock()
			}(u, c)
		}
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count())
	assert.Equal(t, online, offline, "every online transition is matched by one offline")
}
