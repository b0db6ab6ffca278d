package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/narrative-forge/backend/internal/model/story"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/session"
)

func seedSegment(s story.Session) story.Session {
	s.Advance(story.Segment{
		ID:      s.NextSegmentID(),
		Text:    "opening",
		Choices: []story.Choice{{Text: "go", Action: "go"}},
	}, time.Now().UTC())
	return s
}

func TestStoreCreateAndGet(t *testing.T) {
	store := session.NewStore(nil)
	ctx := context.Background()

	created, err := store.Create(ctx, "fantasy", "medium", session.CreateOptions{
		World: map[string]string{"setting": "realm"},
	})
	require.NoError(t, err)
	assert.Equal(t, story.StatusCreated, created.Status)
	assert.Nil(t, created.CurrentSegment)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "fantasy", got.Genre)
	assert.Equal(t, "realm", got.WorldInfo["setting"])
}

func TestStoreGetNotFound(t *testing.T) {
	store := session.NewStore(nil)
	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStoreDeleteInvalidatesID(t *testing.T) {
	store := session.NewStore(nil)
	ctx := context.Background()
	created, err := store.Create(ctx, "mystery", "hard", session.CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, created.ID))

	_, err = store.Get(ctx, created.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	require.ErrorIs(t, store.Delete(ctx, created.ID), session.ErrSessionNotFound)
	_, err = store.WithLock(ctx, created.ID, func(s story.Session) (story.Session, error) { return s, nil })
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.NotContains(t, store.List(ctx), created.ID)
}

func TestStoreWithLockErrorLeavesSessionUntouched(t *testing.T) {
	store := session.NewStore(nil)
	ctx := context.Background()
	created, err := store.Create(ctx, "fantasy", "easy", session.CreateOptions{})
	require.NoError(t, err)
	_, err = store.WithLock(ctx, created.ID, func(s story.Session) (story.Session, error) {
		return seedSegment(s), nil
	})
	require.NoError(t, err)

	before, err := store.Get(ctx, created.ID)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.WithLock(ctx, created.ID, func(s story.Session) (story.Session, error) {
		s.CurrentSegment.Text = "half-written"
		s.History = append(s.History, story.Segment{ID: "bogus"})
		return s, boom
	})
	require.ErrorIs(t, err, boom)

	after, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("session changed after failed mutation (-before +after):\n%s", diff)
	}
}

func TestStoreWithLockSerialisesMutations(t *testing.T) {
	store := session.NewStore(nil)
	ctx := context.Background()
	created, err := store.Create(ctx, "scifi", "medium", session.CreateOptions{})
	require.NoError(t, err)

	const workers = 16
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.WithLock(ctx, created.ID, func(s story.Session) (story.Session, error) {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				s.SegmentSeq++
				atomic.AddInt32(&inside, -1)
				return s, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxInside)
	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.SegmentSeq)
}

func TestStoreGetDoesNotWaitForMutation(t *testing.T) {
	store := session.NewStore(nil)
	ctx := context.Background()
	created, err := store.Create(ctx, "fantasy", "medium", session.CreateOptions{})
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = store.WithLock(ctx, created.ID, func(s story.Session) (story.Session, error) {
			close(entered)
			<-release
			return s, nil
		})
	}()

	<-entered
	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	close(release)
	<-done
}

func TestStoreDeleteDuringMutationDiscardsResult(t *testing.T) {
	store := session.NewStore(nil)
	ctx := context.Background()
	created, err := store.Create(ctx, "fantasy", "medium", session.CreateOptions{})
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		_, err := store.WithLock(ctx, created.ID, func(s story.Session) (story.Session, error) {
			close(entered)
			<-release
			return seedSegment(s), nil
		})
		errCh <- err
	}()

	<-entered
	require.NoError(t, store.Delete(ctx, created.ID))
	close(release)

	require.ErrorIs(t, <-errCh, session.ErrSessionNotFound)
	_, err = store.Get(ctx, created.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStoreWithLockHonoursContextWhileWaiting(t *testing.T) {
	store := session.NewStore(nil)
	created, err := store.Create(context.Background(), "fantasy", "medium", session.CreateOptions{})
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = store.WithLock(context.Background(), created.ID, func(s story.Session) (story.Session, error) {
			close(entered)
			<-release
			return s, nil
		})
	}()
	<-entered
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = store.WithLock(ctx, created.ID, func(s story.Session) (story.Session, error) {
		t.Error("mutation must not run while another holds the lock")
		return s, nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreEvictIdleSessions(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := session.NewStore(nil, session.WithClock(clock))
	ctx := context.Background()

	stale, err := store.Create(ctx, "fantasy", "medium", session.CreateOptions{})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	fresh, err := store.Create(ctx, "fantasy", "medium", session.CreateOptions{})
	require.NoError(t, err)

	evicted := store.Evict(now.Add(-30 * time.Minute))
	assert.Equal(t, []string{stale.ID}, evicted)

	_, err = store.Get(ctx, stale.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = store.Get(ctx, fresh.ID)
	require.NoError(t, err)
}

func TestRunJanitorEvictsIdleSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	var clock atomic.Int64
	clock.Store(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC).UnixNano())
	now := func() time.Time { return time.Unix(0, clock.Load()).UTC() }
	store := session.NewStore(nil, session.WithClock(now))

	idle, err := store.Create(context.Background(), "fantasy", "medium", session.CreateOptions{})
	require.NoError(t, err)
	clock.Add(int64(3 * time.Hour))
	active, err := store.Create(context.Background(), "scifi", "easy", session.CreateOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.RunJanitor(ctx, 2*time.Hour, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), idle.ID)
		return errors.Is(err, session.ErrSessionNotFound)
	}, time.Second, 5*time.Millisecond)
	_, err = store.Get(context.Background(), active.ID)
	require.NoError(t, err)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancellation")
	}
}

func TestRunJanitorDisabledWithoutTTL(t *testing.T) {
	store := session.NewStore(nil)
	for _, ttl := range []time.Duration{0, -time.Minute} {
		done := make(chan struct{})
		go func() {
			defer close(done)
			store.RunJanitor(context.Background(), ttl, time.Millisecond)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("janitor with ttl %v should return immediately", ttl)
		}
	}
}

func TestStoreListIsSorted(t *testing.T) {
	store := session.NewStore(nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.Create(ctx, "fantasy", "medium", session.CreateOptions{})
		require.NoError(t, err)
	}
	ids := store.List(ctx)
	require.Len(t, ids, 5)
	assert.IsNonDecreasing(t, ids)
}
