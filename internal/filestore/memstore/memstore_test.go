package memstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/filestore"
)

func walk(t *testing.T, s *Store, bucket string) ([]string, int) {
	t.Helper()
	var keys []string
	hops := 0
	tok := ""
	for {
		res, err := s.List(context.Background(), bucket, filestore.ListOptions{ContinuationToken: tok})
		require.NoError(t, err)
		hops++
		for _, o := range res.Objects {
			keys = append(keys, o.Key)
		}
		if res.Exhausted() {
			return keys, hops
		}
		tok = res.ContinuationToken
	}
}

func TestList_WalksInBatches(t *testing.T) {
	s := New(WithBatchSize(2))
	for _, k := range []string{"c", "a", "e", "b", "d"} {
		s.Put("b1", k, []byte(k), "text/plain")
	}

	keys, hops := walk(t, s, "b1")
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, keys)
	assert.Equal(t, 3, hops)
}

func TestList_EmptyHops(t *testing.T) {
	s := New(WithBatchSize(2), WithEmptyHops())
	for _, k := range []string{"a", "b", "c"} {
		s.Put("b1", k, []byte(k), "")
	}

	keys, hops := walk(t, s, "b1")
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, 4, hops)
}

func TestList_UnknownBucket(t *testing.T) {
	_, err := New().List(context.Background(), "missing", filestore.ListOptions{})
	assert.True(t, errs.IsNotFound(err))
}

func TestList_InjectedFailure(t *testing.T) {
	s := New()
	s.CreateBucket("b1")
	s.FailList(func(call int) error { return errors.New("boom") })

	_, err := s.List(context.Background(), "b1", filestore.ListOptions{})
	assert.True(t, errs.IsStoreUnavailable(err))
	assert.Equal(t, 1, s.ListCalls())
}

func TestGetObject_RoundTrip(t *testing.T) {
	s := New()
	_, err := s.PutObject(context.Background(), "b1", "k", bytes.NewReader([]byte("hello")), 5, "text/plain")
	require.NoError(t, err)

	obj, err := s.GetObject(context.Background(), "b1", "k")
	require.NoError(t, err)
	defer obj.Close()

	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "text/plain", obj.Info().ContentType)
}

func TestGetObject_CancelledRead(t *testing.T) {
	s := New()
	s.Put("b1", "k", []byte("hello"), "")

	ctx, cancel := context.WithCancel(context.Background())
	obj, err := s.GetObject(ctx, "b1", "k")
	require.NoError(t, err)
	cancel()

	_, err = obj.Read(make([]byte, 4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatObject_Missing(t *testing.T) {
	s := New()
	s.CreateBucket("b1")
	_, err := s.StatObject(context.Background(), "b1", "nope")
	assert.True(t, errs.IsNotFound(err))
}
