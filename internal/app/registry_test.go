package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func peer(id string) *core.Peer {
	return &core.Peer{ID: domain.ConnID(id), Conn: nopConn{}}
}

func TestRegisterProducerSecondRejected(t *testing.T) {
	r := NewRegistry(time.Minute)
	s := r.Create(domain.Subject{Game: "zelda"})

	require.NoError(t, r.RegisterProducer(s.ID, peer("p1")))
	err := r.RegisterProducer(s.ID, peer("p2"))
	require.ErrorIs(t, err, core.ErrAlreadyRegistered)

	// the first binding survives
	p, ok := r.Producer(s.ID)
	require.True(t, ok)
	require.Equal(t, domain.ConnID("p1"), p.ID)
}

func TestRegisterProducerActivates(t *testing.T) {
	r := NewRegistry(time.Minute)
	s := r.Create(domain.Subject{Game: "zelda"})

	st, ok := r.State(s.ID)
	require.True(t, ok)
	require.Equal(t, domain.StateWaiting, st)

	require.NoError(t, r.RegisterProducer(s.ID, peer("p1")))
	st, _ = r.State(s.ID)
	require.Equal(t, domain.StateActive, st)
}

func TestRegisterUnknownSession(t *testing.T) {
	r := NewRegistry(time.Minute)
	require.ErrorIs(t, r.RegisterProducer("nope", peer("p1")), core.ErrNotFound)
	_, err := r.RegisterViewer("nope", peer("v1"))
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestHandleBoundToOneSession(t *testing.T) {
	r := NewRegistry(time.Minute)
	a := r.Create(domain.Subject{Game: "zelda"})
	b := r.Create(domain.Subject{Game: "metroid"})

	_, err := r.RegisterViewer(a.ID, peer("v1"))
	require.NoError(t, err)

	_, err = r.RegisterViewer(b.ID, peer("v1"))
	require.ErrorIs(t, err, core.ErrAlreadyRegistered)
	require.ErrorIs(t, r.RegisterProducer(b.ID, peer("v1")), core.ErrAlreadyRegistered)

	// rejoining the same session is fine
	_, err = r.RegisterViewer(a.ID, peer("v1"))
	require.NoError(t, err)

	info, err := r.Snapshot(a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, info.ViewerCount)
}

func TestProducerDisconnectEndsSession(t *testing.T) {
	r := NewRegistry(time.Minute)
	s := r.Create(domain.Subject{Game: "zelda"})
	require.NoError(t, r.RegisterProducer(s.ID, peer("p1")))
	_, err := r.RegisterViewer(s.ID, peer("v1"))
	require.NoError(t, err)

	res, ok := r.OnDisconnect("p1")
	require.True(t, ok)
	require.True(t, res.WasProducer)
	require.Equal(t, s.ID, res.SessionID)
	require.Len(t, res.Viewers, 1)

	st, ok := r.State(s.ID)
	require.True(t, ok, "session survives until the sweep")
	require.Equal(t, domain.StateEnded, st)

	// viewer handles left the reverse index with the producer
	_, ok = r.SessionOf("v1")
	require.False(t, ok)

	// a producer cannot rebind to an ended session
	require.ErrorIs(t, r.RegisterProducer(s.ID, peer("p2")), core.ErrNotFound)
}

func TestOnDisconnectIdempotent(t *testing.T) {
	r := NewRegistry(time.Minute)
	s := r.Create(domain.Subject{Game: "zelda"})
	require.NoError(t, r.RegisterProducer(s.ID, peer("p1")))

	_, ok := r.OnDisconnect("p1")
	require.True(t, ok)
	_, ok = r.OnDisconnect("p1")
	require.False(t, ok)
	_, ok = r.OnDisconnect("ghost")
	require.False(t, ok)
}

func TestGraceSweepFires(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	s := r.Create(domain.Subject{Game: "zelda"})

	var mu sync.Mutex
	var swept []domain.SessionID
	done := make(chan struct{})
	r.SetExpireFunc(func(sid domain.SessionID) {
		mu.Lock()
		swept = append(swept, sid)
		mu.Unlock()
		close(done)
	})

	require.NoError(t, r.RegisterProducer(s.ID, peer("p1")))
	_, ok := r.OnDisconnect("p1")
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep never fired")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []domain.SessionID{s.ID}, swept)
}

func TestRemoveCancelsSweep(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	s := r.Create(domain.Subject{Game: "zelda"})

	fired := make(chan domain.SessionID, 1)
	r.SetExpireFunc(func(sid domain.SessionID) { fired <- sid })

	require.NoError(t, r.RegisterProducer(s.ID, peer("p1")))
	_, ok := r.OnDisconnect("p1")
	require.True(t, ok)

	r.Remove(s.ID)

	select {
	case <-fired:
		t.Fatal("sweep fired after explicit removal")
	case <-time.After(100 * time.Millisecond):
	}
	_, ok = r.State(s.ID)
	require.False(t, ok)
}

func TestRemoveReturnsAttachedPeers(t *testing.T) {
	r := NewRegistry(time.Minute)
	s := r.Create(domain.Subject{Game: "zelda"})
	require.NoError(t, r.RegisterProducer(s.ID, peer("p1")))
	_, err := r.RegisterViewer(s.ID, peer("v1"))
	require.NoError(t, err)
	_, err = r.RegisterViewer(s.ID, peer("v2"))
	require.NoError(t, err)

	peers := r.Remove(s.ID)
	require.Len(t, peers, 3)

	// idempotent
	require.Nil(t, r.Remove(s.ID))
	_, ok := r.SessionOf("p1")
	require.False(t, ok)
}
