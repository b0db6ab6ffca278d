package story_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
	model "github.com/zhouzirui/narrative-forge/backend/internal/model/story"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/ai"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/narrative"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/session"
	story "github.com/zhouzirui/narrative-forge/backend/internal/service/story"
)

// scriptedEngine returns numbered segments and tracks concurrent calls.
type scriptedEngine struct {
	delay       time.Duration
	initialErr  error
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (e *scriptedEngine) GenerateInitial(_ context.Context, sess model.Session, id string) (narrative.Result, error) {
	if e.initialErr != nil {
		return narrative.Result{}, e.initialErr
	}
	return narrative.Result{
		Segment:   segment(id, "Once upon a time."),
		WorldInfo: map[string]string{"weather": "storm"},
	}, nil
}

func (e *scriptedEngine) GenerateNext(_ context.Context, sess model.Session, choice model.Choice, id string) (narrative.Result, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		max := e.maxInFlight.Load()
		if n <= max || e.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	return narrative.Result{
		Segment:       segment(id, fmt.Sprintf("After %s.", choice.Action)),
		CharacterInfo: map[string]string{"last_action": choice.Action},
	}, nil
}

func segment(id, text string) model.Segment {
	return model.Segment{
		ID:   id,
		Text: text,
		Choices: []model.Choice{
			{Text: "Left", Action: "left"},
			{Text: "Right", Action: "right"},
		},
	}
}

func newService(t *testing.T, engine story.Engine) (*story.Service, *session.Store) {
	t.Helper()
	store := session.NewStore(nil)
	return story.NewService(store, engine, catalog.NewDefaultStore(), nil), store
}

func TestCreateSeedsFirstSegment(t *testing.T) {
	svc, _ := newService(t, &scriptedEngine{})
	ctx := context.Background()

	sess, err := svc.Create(ctx, "fantasy", "medium")
	require.NoError(t, err)

	assert.Equal(t, model.StatusActive, sess.Status)
	require.NotNil(t, sess.CurrentSegment)
	assert.Equal(t, "seg-1", sess.CurrentSegment.ID)
	assert.Empty(t, sess.History)
	assert.Equal(t, "A brave adventurer seeking glory and treasure", sess.CharacterInfo["protagonist"])
	assert.Equal(t, "storm", sess.WorldInfo["weather"])

	stored, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(sess, stored); diff != "" {
		t.Fatalf("stored session differs (-returned +stored):\n%s", diff)
	}
}

func TestCreateRejectsUnknownGenreAndDifficulty(t *testing.T) {
	svc, store := newService(t, &scriptedEngine{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "western", "medium")
	assert.ErrorIs(t, err, story.ErrValidation)

	_, err = svc.Create(ctx, "fantasy", "nightmare")
	assert.ErrorIs(t, err, story.ErrValidation)

	assert.Empty(t, store.List(ctx))
}

func TestCreateDiscardsSessionWhenModelUnavailable(t *testing.T) {
	svc, store := newService(t, &scriptedEngine{initialErr: ai.ErrQueueTimeout})
	ctx := context.Background()

	_, err := svc.Create(ctx, "scifi", "easy")
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrModelUnavailable)
	assert.Empty(t, store.List(ctx))
}

func TestResolveAppendsHistoryPerChoice(t *testing.T) {
	svc, _ := newService(t, &scriptedEngine{})
	ctx := context.Background()

	sess, err := svc.Create(ctx, "mystery", "hard")
	require.NoError(t, err)

	const turns = 5
	previous := *sess.CurrentSegment
	for i := 0; i < turns; i++ {
		next, err := svc.Resolve(ctx, sess.ID, i%2)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("seg-%d", i+2), next.ID)

		history, err := svc.History(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, history, i+1)
		if diff := cmp.Diff(previous, history[i]); diff != "" {
			t.Fatalf("turn %d: history tail is not the previous segment (-want +got):\n%s", i, diff)
		}
		previous = next
	}

	final, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, final.History, turns)
	assert.Equal(t, "left", final.CharacterInfo["last_action"])
	assert.True(t, !final.LastUpdated.Before(final.CreatedAt))
}

func TestResolveInvalidIndexLeavesSessionUntouched(t *testing.T) {
	svc, _ := newService(t, &scriptedEngine{})
	ctx := context.Background()

	sess, err := svc.Create(ctx, "fantasy", "easy")
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, sess.ID, 0)
	require.NoError(t, err)

	before, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)

	for _, idx := range []int{-1, 2, 99} {
		_, err := svc.Resolve(ctx, sess.ID, idx)
		assert.ErrorIs(t, err, story.ErrInvalidChoice, "index %d", idx)
	}

	after, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("invalid choice changed the session (-before +after):\n%s", diff)
	}
}

func TestResolveUnknownSession(t *testing.T) {
	svc, _ := newService(t, &scriptedEngine{})

	_, err := svc.Resolve(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestConcurrentChoicesAreSerialised(t *testing.T) {
	engine := &scriptedEngine{delay: 2 * time.Millisecond}
	svc, _ := newService(t, engine)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "scifi", "medium")
	require.NoError(t, err)

	const workers = 12
	var wg sync.WaitGroup
	ids := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seg, err := svc.Resolve(ctx, sess.ID, i%2)
			if assert.NoError(t, err) {
				ids <- seg.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	assert.EqualValues(t, 1, engine.maxInFlight.Load())

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "segment id %s issued twice", id)
		seen[id] = true
	}
	for n := 2; n <= workers+1; n++ {
		assert.True(t, seen[fmt.Sprintf("seg-%d", n)], "missing seg-%d", n)
	}

	final, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, final.History, workers)
	for i, seg := range final.History {
		assert.Equal(t, fmt.Sprintf("seg-%d", i+1), seg.ID)
	}
}

type brokenBackend struct{}

func (brokenBackend) Name() string { return "broken" }

func (brokenBackend) Generate(context.Context, ai.Prompt, ai.Params) (string, error) {
	return "", errors.New("model exploded")
}

func TestFailingModelYieldsFallbackSegment(t *testing.T) {
	genres := catalog.NewDefaultStore()
	gateway := ai.NewGateway(brokenBackend{}, ai.GatewayConfig{MaxAttempts: 1}, nil)
	engine := narrative.NewEngine(gateway, genres, narrative.DefaultConfig(), nil)
	store := session.NewStore(nil)
	svc := story.NewService(store, engine, genres, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "fantasy", "medium")
	require.NoError(t, err)
	genre, _ := genres.FindGenre("fantasy")
	assert.Equal(t, genre.Opening.Text, sess.CurrentSegment.Text)
	assert.Equal(t, []model.Choice{narrative.ContinueChoice}, sess.CurrentSegment.Choices)

	next, err := svc.Resolve(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "seg-2", next.ID)
	assert.Equal(t, []model.Choice{narrative.ContinueChoice}, next.Choices)

	history, err := svc.History(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestOfflineNarratorPlaysAStory(t *testing.T) {
	genres := catalog.NewDefaultStore()
	gateway := ai.NewGateway(ai.NewOfflineBackend(genres), ai.DefaultGatewayConfig(), nil)
	engine := narrative.NewEngine(gateway, genres, narrative.DefaultConfig(), nil)
	svc := story.NewService(session.NewStore(nil), engine, genres, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "fantasy", "easy")
	require.NoError(t, err)
	assert.Equal(t, "bold_entrance", sess.CurrentSegment.Choices[0].Action)

	next, err := svc.Resolve(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Contains(t, next.Text, "Crystal Caverns")
	assert.Len(t, next.Choices, 3)
}

func TestEndInvalidatesSession(t *testing.T) {
	svc, _ := newService(t, &scriptedEngine{})
	ctx := context.Background()

	sess, err := svc.Create(ctx, "fantasy", "medium")
	require.NoError(t, err)

	require.NoError(t, svc.End(ctx, sess.ID))
	assert.ErrorIs(t, svc.End(ctx, sess.ID), session.ErrSessionNotFound)

	_, err = svc.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = svc.Resolve(ctx, sess.ID, 0)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.NotContains(t, svc.List(ctx), sess.ID)
}
