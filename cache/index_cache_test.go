package cache

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"multitrack/model"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingIndex struct {
	calls   atomic.Int32
	release chan struct{}
	records []model.PublicationRecord
}

func (i *countingIndex) Publications(context.Context, string) ([]model.PublicationRecord, error) {
	i.calls.Add(1)
	if i.release != nil {
		<-i.release
	}
	return i.records, nil
}

func (i *countingIndex) Profiles(_ context.Context, address string) ([]model.Profile, error) {
	i.calls.Add(1)
	return []model.Profile{{ID: address, Handle: address}}, nil
}

func (i *countingIndex) Following(context.Context, string) ([]model.Profile, error) {
	i.calls.Add(1)
	return nil, nil
}

func records() []model.PublicationRecord {
	return []model.PublicationRecord{
		{ID: "0xa-0x01", Kind: model.KindOriginal, Title: "drums", MediaRefs: []string{"ipfs://d"}},
		{ID: "0xa-0x02", Kind: model.KindRemix, ParentID: "0xa-0x01", Title: "bass", MediaRefs: []string{"ipfs://b", "ipfs://m"}},
	}
}

func TestIndexCache_CollapsesConcurrentMisses(t *testing.T) {
	next := &countingIndex{release: make(chan struct{}), records: records()}
	c := NewIndexCache(next, nil, time.Minute)

	const n = 8
	var started, done sync.WaitGroup
	started.Add(n)
	done.Add(n)
	results := make([][]model.PublicationRecord, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			recs, err := c.Publications(context.Background(), "0xa")
			assert.NoError(t, err)
			results[i] = recs
		}(i)
	}
	started.Wait()
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(next.release)
	done.Wait()

	assert.EqualValues(t, 1, next.calls.Load())
	for _, r := range results {
		assert.Equal(t, records(), r)
	}
}

type blockingIndex struct {
	countingIndex
}

func (i *blockingIndex) Publications(ctx context.Context, _ string) ([]model.PublicationRecord, error) {
	i.calls.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-i.release:
		return i.records, nil
	}
}

func TestIndexCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	next := &blockingIndex{countingIndex{release: make(chan struct{}), records: records()}}
	c := NewIndexCache(next, nil, time.Minute)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Publications(firstCtx, "0xa")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		recs []model.PublicationRecord
		err  error
	}
	second := make(chan result, 1)
	go func() {
		recs, err := c.Publications(context.Background(), "0xa")
		second <- result{recs, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller still waiting")
	}

	close(next.release)
	select {
	case r := <-second:
		require.NoError(t, r.err)
		assert.Equal(t, records(), r.recs)
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}
	assert.EqualValues(t, 1, next.calls.Load())
}

func TestIndexCache_NilClientPassesThrough(t *testing.T) {
	next := &countingIndex{records: records()}
	c := NewIndexCache(next, nil, time.Minute)
	ctx := context.Background()

	_, err := c.Publications(ctx, "0xa")
	require.NoError(t, err)
	_, err = c.Publications(ctx, "0xa")
	require.NoError(t, err)
	assert.EqualValues(t, 2, next.calls.Load())

	c.Invalidate(ctx, "0xa")
	c.InvalidateFollowing(ctx, "0xabc")
	profiles, err := c.Profiles(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", profiles[0].ID)
}

// TestIndexCache_Redis runs against a live server when MULTITRACK_TEST_REDIS
// names one.
func TestIndexCache_Redis(t *testing.T) {
	addr := os.Getenv("MULTITRACK_TEST_REDIS")
	if addr == "" {
		t.Skip("MULTITRACK_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	owner := "0xtest-" + time.Now().Format("150405.000")
	next := &countingIndex{records: records()}
	c := NewIndexCache(next, client, time.Minute)
	defer c.Invalidate(ctx, owner)

	first, err := c.Publications(ctx, owner)
	require.NoError(t, err)
	second, err := c.Publications(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, next.calls.Load())

	c.Invalidate(ctx, owner)
	_, err = c.Publications(ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 2, next.calls.Load())
}
