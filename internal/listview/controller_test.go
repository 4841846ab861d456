package listview_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lllypuk/userdesk/internal/listview"
	"github.com/lllypuk/userdesk/internal/userapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listCall struct {
	page  int
	size  int
	query string
}

// fakeLister records calls and answers from a programmable function.
type fakeLister struct {
	mu      sync.Mutex
	calls   []listCall
	respond func(call listCall) (*userapi.PageResult, error)
}

func (f *fakeLister) ListUsers(_ context.Context, page, size int, query string) (*userapi.PageResult, error) {
	call := listCall{page: page, size: size, query: query}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return &userapi.PageResult{Content: []userapi.User{}}, nil
	}
	return respond(call)
}

func (f *fakeLister) Calls() []listCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]listCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func pageOf(total int, users ...userapi.User) *userapi.PageResult {
	return &userapi.PageResult{Content: users, TotalElements: total}
}

func TestController_Defaults(t *testing.T) {
	c := listview.New(&fakeLister{})

	snap := c.Snapshot()

	assert.Equal(t, 0, snap.Page)
	assert.Equal(t, listview.DefaultSize, snap.Size)
	assert.Empty(t, snap.Query)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Err)
	assert.NotNil(t, snap.Records)
	assert.Equal(t, "1 / 1", snap.PageLabel())
}

func TestController_Load(t *testing.T) {
	lister := &fakeLister{respond: func(listCall) (*userapi.PageResult, error) {
		return pageOf(1, userapi.User{ID: 1, Username: "alice"}), nil
	}}
	c := listview.New(lister, listview.WithSize(20))

	snap := c.Load(context.Background())

	require.Len(t, lister.Calls(), 1)
	assert.Equal(t, listCall{page: 0, size: 20}, lister.Calls()[0])
	assert.False(t, snap.Loading)
	assert.Equal(t, 1, snap.Total)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "alice", snap.Records[0].Username)
}

func TestController_SetQueryResetsPage(t *testing.T) {
	lister := &fakeLister{respond: func(listCall) (*userapi.PageResult, error) {
		return pageOf(100), nil
	}}
	c := listview.New(lister)
	ctx := context.Background()

	_, err := c.SetPage(ctx, 4)
	require.NoError(t, err)

	snap := c.SetQuery(ctx, "bob")

	calls := lister.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, listCall{page: 4, size: 10}, calls[0])
	assert.Equal(t, listCall{page: 0, size: 10, query: "bob"}, calls[1])
	assert.Equal(t, 0, snap.Page)
	assert.Equal(t, "bob", snap.Query)
}

func TestController_SetSizeResetsPage(t *testing.T) {
	lister := &fakeLister{}
	c := listview.New(lister)
	ctx := context.Background()

	_, err := c.SetPage(ctx, 2)
	require.NoError(t, err)
	snap, err := c.SetSize(ctx, 50)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.Page)
	assert.Equal(t, 50, snap.Size)
	assert.Equal(t, listCall{page: 0, size: 50}, lister.Calls()[1])
}

func TestController_SetPageKeepsQueryAndSize(t *testing.T) {
	lister := &fakeLister{}
	c := listview.New(lister)
	ctx := context.Background()

	_, err := c.SetSize(ctx, 5)
	require.NoError(t, err)
	c.SetQuery(ctx, "x")
	snap, err := c.SetPage(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, listCall{page: 3, size: 5, query: "x"}, lister.Calls()[2])
	assert.Equal(t, 3, snap.Page)
	assert.Equal(t, 5, snap.Size)
	assert.Equal(t, "x", snap.Query)
}

func TestController_RejectsInvalidInput(t *testing.T) {
	lister := &fakeLister{}
	c := listview.New(lister)
	ctx := context.Background()

	_, err := c.SetPage(ctx, -1)
	require.ErrorIs(t, err, listview.ErrInvalidPage)

	_, err = c.SetSize(ctx, 7)
	require.ErrorIs(t, err, listview.ErrInvalidSize)

	_, err = c.Apply(ctx, 0, 0, "")
	require.ErrorIs(t, err, listview.ErrInvalidSize)

	assert.Empty(t, lister.Calls(), "rejected input must not issue a request")
}

func TestController_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps page when query and size are unchanged", func(t *testing.T) {
		lister := &fakeLister{}
		c := listview.New(lister)
		c.SetQuery(ctx, "ann")

		snap, err := c.Apply(ctx, 2, 10, "ann")

		require.NoError(t, err)
		assert.Equal(t, 2, snap.Page)
		assert.Equal(t, listCall{page: 2, size: 10, query: "ann"}, lister.Calls()[1])
	})

	t.Run("resets page when query changes", func(t *testing.T) {
		lister := &fakeLister{}
		c := listview.New(lister)

		snap, err := c.Apply(ctx, 3, 10, "new")

		require.NoError(t, err)
		assert.Equal(t, 0, snap.Page)
		assert.Equal(t, listCall{page: 0, size: 10, query: "new"}, lister.Calls()[0])
	})

	t.Run("resets page when size changes", func(t *testing.T) {
		lister := &fakeLister{}
		c := listview.New(lister)

		snap, err := c.Apply(ctx, 3, 20, "")

		require.NoError(t, err)
		assert.Equal(t, 0, snap.Page)
		assert.Len(t, lister.Calls(), 1)
	})
}

func TestController_FailureKeepsPreviousRecords(t *testing.T) {
	fail := false
	lister := &fakeLister{respond: func(listCall) (*userapi.PageResult, error) {
		if fail {
			return nil, &userapi.RequestError{Status: 500, Message: "db down"}
		}
		return pageOf(1, userapi.User{ID: 9, Username: "kept"}), nil
	}}
	c := listview.New(lister)
	ctx := context.Background()

	c.Load(ctx)
	fail = true
	snap := c.Refresh(ctx)

	assert.Equal(t, "db down", snap.Err)
	assert.False(t, snap.Loading)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "kept", snap.Records[0].Username)
	assert.Equal(t, 1, snap.Total)

	fail = false
	snap = c.Refresh(ctx)
	assert.Empty(t, snap.Err, "success clears the previous error")
}

func TestController_EmptyErrorMessage(t *testing.T) {
	lister := &fakeLister{respond: func(listCall) (*userapi.PageResult, error) {
		return nil, errors.New("")
	}}
	c := listview.New(lister)

	snap := c.Load(context.Background())

	assert.Equal(t, "failed to load users", snap.Err)
}

func TestController_AfterCreateReturnsToFirstPage(t *testing.T) {
	lister := &fakeLister{}
	c := listview.New(lister)
	ctx := context.Background()

	c.SetQuery(ctx, "team")
	_, err := c.SetPage(ctx, 5)
	require.NoError(t, err)

	snap := c.AfterCreate(ctx)

	calls := lister.Calls()
	assert.Equal(t, listCall{page: 0, size: 10, query: "team"}, calls[len(calls)-1])
	assert.Equal(t, 0, snap.Page)
	assert.Equal(t, uint64(1), snap.Refresh)
}

func TestController_AfterMutationKeepsPage(t *testing.T) {
	lister := &fakeLister{}
	c := listview.New(lister)
	ctx := context.Background()

	_, err := c.SetPage(ctx, 2)
	require.NoError(t, err)

	snap := c.AfterMutation(ctx)

	assert.Equal(t, 2, snap.Page)
	assert.Len(t, lister.Calls(), 2)
}

func TestController_LoadingIsSetWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	lister := &fakeLister{respond: func(listCall) (*userapi.PageResult, error) {
		close(started)
		<-release
		return pageOf(0), nil
	}}
	c := listview.New(lister)

	done := make(chan listview.Snapshot)
	go func() { done <- c.Load(context.Background()) }()

	<-started
	assert.True(t, c.Snapshot().Loading)

	close(release)
	snap := <-done
	assert.False(t, snap.Loading)
}

func TestController_StaleResponseIsDiscarded(t *testing.T) {
	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})

	lister := &fakeLister{respond: func(call listCall) (*userapi.PageResult, error) {
		if call.query == "a" {
			close(slowStarted)
			<-releaseSlow
			return pageOf(1, userapi.User{ID: 1, Username: "stale"}), nil
		}
		return pageOf(1, userapi.User{ID: 2, Username: "fresh"}), nil
	}}
	c := listview.New(lister)
	ctx := context.Background()

	slowDone := make(chan listview.Snapshot)
	go func() { slowDone <- c.SetQuery(ctx, "a") }()
	<-slowStarted

	fresh := c.SetQuery(ctx, "ab")
	require.Len(t, fresh.Records, 1)
	assert.Equal(t, "fresh", fresh.Records[0].Username)

	close(releaseSlow)
	<-slowDone

	final := c.Snapshot()
	require.Len(t, final.Records, 1)
	assert.Equal(t, "fresh", final.Records[0].Username)
	assert.Equal(t, "ab", final.Query)
	assert.False(t, final.Loading)
}

func TestSnapshot_Find(t *testing.T) {
	snap := listview.Snapshot{Records: []userapi.User{{ID: 1, Username: "a"}, {ID: 2, Username: "b"}}}

	u, ok := snap.Find(2)
	require.True(t, ok)
	assert.Equal(t, "b", u.Username)

	_, ok = snap.Find(3)
	assert.False(t, ok)
}

func TestSnapshot_SnapshotIsACopy(t *testing.T) {
	lister := &fakeLister{respond: func(listCall) (*userapi.PageResult, error) {
		return pageOf(1, userapi.User{ID: 1, Username: "orig"}), nil
	}}
	c := listview.New(lister)

	snap := c.Load(context.Background())
	snap.Records[0].Username = "changed"

	assert.Equal(t, "orig", c.Snapshot().Records[0].Username)
}
