package support

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(ttl time.Duration, snd *fakeSender) *Registry {
	return NewRegistry(func() *Workflow {
		return NewWorkflow(&fakeAccount{}, collectorReturning("h1"), snd, WithLogger(quietLogger))
	}, ttl)
}

func TestRegistry_CreateGetDiscard(t *testing.T) {
	reg := newTestRegistry(time.Minute, &fakeSender{})

	id, wf := reg.Create()
	require.NotEmpty(t, id)

	got, err := reg.Get(id)
	require.NoError(t, err)
	assert.Same(t, wf, got)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, reg.Discard(id))
	_, err = reg.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, reg.Discard(id), ErrSessionNotFound)
}

func TestRegistry_SessionsAreIndependent(t *testing.T) {
	reg := newTestRegistry(time.Minute, &fakeSender{})

	idA, a := reg.Create()
	idB, b := reg.Create()
	require.NotEqual(t, idA, idB)

	a.SetMessage("only in a")
	assert.Empty(t, b.Draft().Message)
}

func TestRegistry_SweepExpiresIdleSessions(t *testing.T) {
	reg := newTestRegistry(time.Minute, &fakeSender{})
	idleID, _ := reg.Create()

	assert.Equal(t, 0, reg.Sweep(time.Now()))
	assert.Equal(t, 1, reg.Sweep(time.Now().Add(2*time.Minute)))

	_, err := reg.Get(idleID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_SweepKeepsInFlightSessions(t *testing.T) {
	snd := &fakeSender{gate: make(chan struct{})}
	reg := newTestRegistry(time.Minute, snd)
	id, wf := reg.Create()
	wf.SetMessage("bug")

	ch, ok := wf.Submit(context.Background())
	require.True(t, ok)

	assert.Equal(t, 0, reg.Sweep(time.Now().Add(time.Hour)))
	_, err := reg.Get(id)
	assert.NoError(t, err)

	close(snd.gate)
	await(t, ch)
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	reg := newTestRegistry(time.Nanosecond, &fakeSender{})
	reg.Create()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRegistry_NewIsUntracked(t *testing.T) {
	reg := newTestRegistry(time.Minute, &fakeSender{})

	wf := reg.New()
	require.NotNil(t, wf)
	assert.Equal(t, StateInitial, wf.State())
	assert.Equal(t, 0, reg.Len())
}
