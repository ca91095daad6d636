package paging

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/filestore"
	"github.com/koustreak/filegate/internal/filestore/memstore"
)

const bucket = "uploads"

func seeded(n int, opts ...memstore.Option) *memstore.Store {
	s := memstore.New(opts...)
	s.CreateBucket(bucket)
	for i := 0; i < n; i++ {
		s.Put(bucket, fmt.Sprintf("file-%02d.txt", i), []byte(fmt.Sprintf("content %d", i)), "text/plain")
	}
	return s
}

func keys(objs []filestore.ObjectInfo) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Key
	}
	return out
}

func TestListPage_ThirdPageOfTwentyFive(t *testing.T) {
	p := New(seeded(25, memstore.WithBatchSize(7)), 0)

	res, err := p.ListPage(context.Background(), bucket, PageRequest{Page: 3, PageSize: 10})
	require.NoError(t, err)

	assert.Equal(t, 25, res.TotalItems)
	assert.Equal(t, 3, res.TotalPages())
	assert.Equal(t, []string{"file-20.txt", "file-21.txt", "file-22.txt", "file-23.txt", "file-24.txt"}, keys(res.Items))
}

func TestListPage_PagesConcatenateToListAll(t *testing.T) {
	for _, batch := range []int{1, 3, 10, 1000} {
		for _, size := range []int{1, 4, 7, 25} {
			t.Run(fmt.Sprintf("batch=%d/size=%d", batch, size), func(t *testing.T) {
				store := seeded(23, memstore.WithBatchSize(batch))
				p := New(store, 0)
				ctx := context.Background()

				all, err := p.ListAll(ctx, bucket)
				require.NoError(t, err)

				var joined []string
				for page := 1; ; page++ {
					res, err := p.ListPage(ctx, bucket, PageRequest{Page: page, PageSize: size})
					if errs.IsNotFound(err) {
						break
					}
					require.NoError(t, err)
					assert.Equal(t, len(all), res.TotalItems)
					joined = append(joined, keys(res.Items)...)
				}
				assert.Equal(t, keys(all), joined)
			})
		}
	}
}

func TestListPage_BeyondLastIsNotFound(t *testing.T) {
	p := New(seeded(25), 0)

	_, err := p.ListPage(context.Background(), bucket, PageRequest{Page: 4, PageSize: 10})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), NotFoundMessage)
}

func TestListPage_EmptyBucketIsNotFound(t *testing.T) {
	p := New(seeded(0), 0)

	_, err := p.ListPage(context.Background(), bucket, PageRequest{Page: 1, PageSize: 10})
	assert.True(t, errs.IsNotFound(err))
}

func TestListPage_InvalidRequestMakesNoStoreCall(t *testing.T) {
	tests := []PageRequest{
		{Page: 0, PageSize: 10},
		{Page: 1, PageSize: 0},
		{Page: -3, PageSize: -1},
	}

	for _, req := range tests {
		t.Run(fmt.Sprintf("%+v", req), func(t *testing.T) {
			store := seeded(5)
			_, err := New(store, 0).ListPage(context.Background(), bucket, req)
			assert.True(t, errs.IsInvalidInput(err))
			assert.Zero(t, store.ListCalls())
		})
	}
}

func TestListPage_ToleratesEmptyHops(t *testing.T) {
	p := New(seeded(12, memstore.WithBatchSize(5), memstore.WithEmptyHops()), 0)

	res, err := p.ListPage(context.Background(), bucket, PageRequest{Page: 2, PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, res.TotalItems)
	assert.Equal(t, []string{"file-05.txt", "file-06.txt", "file-07.txt", "file-08.txt", "file-09.txt"}, keys(res.Items))
}

func TestListPage_StoreFailureAbortsWalk(t *testing.T) {
	store := seeded(30, memstore.WithBatchSize(10))
	store.FailList(func(call int) error {
		if call == 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	_, err := New(store, 0).ListPage(context.Background(), bucket, PageRequest{Page: 1, PageSize: 5})
	require.Error(t, err)
	assert.True(t, errs.IsStoreUnavailable(err))
}

func TestListPage_NewestFirst(t *testing.T) {
	p := New(seeded(12, memstore.WithBatchSize(4)), 0)

	res, err := p.ListPage(context.Background(), bucket, PageRequest{Page: 1, PageSize: 3, Order: OrderNewest})
	require.NoError(t, err)
	assert.Equal(t, []string{"file-11.txt", "file-10.txt", "file-09.txt"}, keys(res.Items))
	assert.Equal(t, 12, res.TotalItems)
}

type loopingStore struct {
	filestore.Store
}

func (loopingStore) List(context.Context, string, filestore.ListOptions) (*filestore.ListResult, error) {
	return &filestore.ListResult{ContinuationToken: "same"}, nil
}

func TestWalker_RepeatingTokenAborts(t *testing.T) {
	_, err := New(loopingStore{}, 0).ListAll(context.Background(), bucket)
	require.Error(t, err)
	assert.True(t, errs.IsStoreUnavailable(err))
}

func TestEach_StopsWalkingAfterPage(t *testing.T) {
	store := seeded(100, memstore.WithBatchSize(10))
	p := New(store, 0)

	var got []string
	n, err := p.Each(context.Background(), bucket, PageRequest{Page: 2, PageSize: 10}, func(o filestore.ObjectInfo) error {
		got = append(got, o.Key)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 10, n)
	assert.Equal(t, "file-10.txt", got[0])
	assert.Equal(t, "file-19.txt", got[9])
	assert.Equal(t, 2, store.ListCalls(), "walk must not exhaust the bucket")
}

func TestEach_MatchesListPage(t *testing.T) {
	for _, order := range []Order{OrderStore, OrderNewest} {
		t.Run(order.String(), func(t *testing.T) {
			p := New(seeded(17, memstore.WithBatchSize(3)), 0)
			req := PageRequest{Page: 2, PageSize: 6, Order: order}

			page, err := p.ListPage(context.Background(), bucket, req)
			require.NoError(t, err)

			var got []string
			_, err = p.Each(context.Background(), bucket, req, func(o filestore.ObjectInfo) error {
				got = append(got, o.Key)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, keys(page.Items), got)
		})
	}
}

func TestEach_CallbackErrorStops(t *testing.T) {
	p := New(seeded(10), 0)
	stop := errors.New("sink closed")

	n, err := p.Each(context.Background(), bucket, PageRequest{Page: 1, PageSize: 10}, func(o filestore.ObjectInfo) error {
		if o.Key == "file-03.txt" {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, n)
}

func TestPageRequestFromQuery(t *testing.T) {
	cfg := Config{DefaultPageSize: 10, MaxPageSize: 50}

	tests := []struct {
		name    string
		query   string
		want    PageRequest
		invalid bool
	}{
		{name: "defaults", query: "", want: PageRequest{Page: 1, PageSize: 10}},
		{name: "explicit", query: "page=3&pageSize=20", want: PageRequest{Page: 3, PageSize: 20}},
		{name: "snake case size", query: "page=2&page_size=5", want: PageRequest{Page: 2, PageSize: 5}},
		{name: "newest", query: "sort=newest", want: PageRequest{Page: 1, PageSize: 10, Order: OrderNewest}},
		{name: "zero page", query: "page=0", invalid: true},
		{name: "negative size", query: "pageSize=-1", invalid: true},
		{name: "not a number", query: "page=abc", invalid: true},
		{name: "above max", query: "pageSize=51", invalid: true},
		{name: "unknown sort", query: "sort=size", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := PageRequestFromQuery(values, cfg)
			if tt.invalid {
				assert.True(t, errs.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_Finalize(t *testing.T) {
	t.Setenv(EnvMaxPageSize, "")
	t.Setenv(EnvDefaultPageSize, "")

	var c Config
	require.NoError(t, c.Finalize())
	assert.Equal(t, 10, c.DefaultPageSize)
	assert.Equal(t, 1000, c.MaxPageSize)

	bad := Config{DefaultPageSize: 20, MaxPageSize: 5}
	assert.Error(t, bad.Finalize())
}
