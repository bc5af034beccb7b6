package invalidation

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/static-hub/static-hub/internal/cache"
)

func newInvalidator(t *testing.T) (*Invalidator, cache.Store) {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(store, logger), store
}

func seed(t *testing.T, store cache.Store, keys ...cache.Key) {
	t.Helper()
	for _, k := range keys {
		_, err := store.Put(context.Background(), k, bytes.NewReader([]byte("<html></html>")), cache.PutOptions{})
		require.NoError(t, err)
	}
}

func rootNames(t *testing.T, store cache.Store) []string {
	t.Helper()
	entries, err := os.ReadDir(store.Resolver().Root())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestContentEventsFlush(t *testing.T) {
	for _, kind := range []Kind{ContentPublished, ContentTrashed, ContentDeleted, ThemeSwitched, ExtensionActivated, ExtensionDeactivated, ManualPurge} {
		t.Run(string(kind), func(t *testing.T) {
			inv, store := newInvalidator(t)
			seed(t, store, cache.Key{Host: "example.com", URI: "/blog/"})

			require.True(t, inv.OnContentChange(Event{Kind: kind}))
			require.Equal(t, []string{cache.SentinelName}, rootNames(t, store))
		})
	}
}

func TestCommentTransitions(t *testing.T) {
	testCases := []struct {
		old, new string
		fires    bool
	}{
		{"pending", "approved", true},
		{"approved", "spam", true},
		{"approved", "trash", true},
		{"pending", "spam", false},
		{"approved", "approved", false},
		{"", "pending", false},
	}
	for _, tc := range testCases {
		inv, store := newInvalidator(t)
		seed(t, store, cache.Key{Host: "example.com", URI: "/post/"})
		fired := inv.OnContentChange(Event{Kind: CommentStatusChanged, OldStatus: tc.old, NewStatus: tc.new})
		require.Equal(t, tc.fires, fired, "%s -> %s", tc.old, tc.new)
		if !tc.fires {
			require.Contains(t, rootNames(t, store), "example.com")
		}
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	inv, store := newInvalidator(t)
	seed(t, store, cache.Key{Host: "example.com", URI: "/"})
	require.False(t, inv.OnContentChange(Event{Kind: "menu_saved"}))
	require.Contains(t, rootNames(t, store), "example.com")
}

func TestInvalidateURL(t *testing.T) {
	inv, store := newInvalidator(t)
	desktop := cache.Key{Host: "example.com", URI: "/blog/"}
	mobile := cache.Key{Host: "example.com", URI: "/blog/", Mobile: true}
	other := cache.Key{Host: "example.com", URI: "/about/"}
	seed(t, store, desktop, mobile, other)

	require.NoError(t, inv.InvalidateURL(context.Background(), "example.com", "/blog/"))
	_, err := store.Get(context.Background(), desktop)
	require.ErrorIs(t, err, cache.ErrNotFound)
	_, err = store.Get(context.Background(), mobile)
	require.ErrorIs(t, err, cache.ErrNotFound)
	res, err := store.Get(context.Background(), other)
	require.NoError(t, err)
	res.Reader.Close()

	require.ErrorIs(t, inv.InvalidateURL(context.Background(), "example.com", "/../x"), cache.ErrInvalidKey)
}

func TestBusDispatchesToInvalidator(t *testing.T) {
	inv, store := newInvalidator(t)
	seed(t, store, cache.Key{Host: "example.com", URI: "/"})

	d := NewDispatcher()
	inv.Register(d)
	done := make(chan struct{}, 1)
	d.On(func(context.Context, Event) { done <- struct{}{} }, ManualPurge)

	bus := NewBus(d, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	require.Error(t, bus.Publish(Event{Kind: "bogus"}))
	require.NoError(t, bus.Publish(Event{Kind: ManualPurge}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not dispatched")
	}
	require.Equal(t, []string{cache.SentinelName}, rootNames(t, store))
}

func TestBusFull(t *testing.T) {
	bus := NewBus(NewDispatcher(), 1)
	require.NoError(t, bus.Publish(Event{Kind: ManualPurge}))
	require.ErrorIs(t, bus.Publish(Event{Kind: ManualPurge}), ErrBusFull)
}

func TestDispatchCountsHandlers(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	d.On(func(context.Context, Event) { calls++ }, ThemeSwitched, ContentPublished)
	d.On(nil, ThemeSwitched)
	require.Equal(t, 1, d.Dispatch(context.Background(), Event{Kind: ThemeSwitched}))
	require.Equal(t, 0, d.Dispatch(context.Background(), Event{Kind: ContentDeleted}))
	require.Equal(t, 1, calls)
}
