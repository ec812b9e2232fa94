package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := New(context.Background(), Options{Addr: srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	srv.CheckGet(t, "k", "v")
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := New(context.Background(), Options{Addr: addr})
	require.Error(t, err)
}

func TestNewAcceptsURL(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := New(context.Background(), Options{Addr: "redis://" + srv.Addr() + "/0", PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.Equal(t, 2, client.Options().PoolSize)

	_, err = New(context.Background(), Options{Addr: "redis://" + srv.Addr() + "/notadb"})
	require.ErrorContains(t, err, "parse url")
}
