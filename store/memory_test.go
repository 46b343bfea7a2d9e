package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_PutGet(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	_, err := st.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Put(ctx, "k", []byte("v1")))
	v, err := st.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	// overwrite is last-writer-wins
	require.NoError(t, st.Put(ctx, "k", []byte("v2")))
	v, err = st.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
}

func TestMemory_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := NewMemory()

	sub, err := st.Subscribe(ctx, TasksChannel)
	require.NoError(t, err)

	require.NoError(t, st.Publish(ctx, TasksChannel, []byte("a")))
	require.NoError(t, st.Publish(ctx, TasksChannel, []byte("b")))

	require.Equal(t, []byte("a"), <-sub)
	require.Equal(t, []byte("b"), <-sub)
}

func TestMemory_PublishReachesNoOneWithoutSubscribers(t *testing.T) {
	st := NewMemory()
	require.NoError(t, st.Publish(context.Background(), TasksChannel, []byte("lost")))
}

func TestMemory_SubscribeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := NewMemory()

	sub, err := st.Subscribe(ctx, TasksChannel)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-sub:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription did not close on cancel")
	}
}
