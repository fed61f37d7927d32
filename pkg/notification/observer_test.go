package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserversConvergeAfterPush(t *testing.T) {
	ctx := context.Background()
	e, api, _, _ := setup(t, note("n1", false, 0), note("n2", true, 0))
	require.NoError(t, e.FetchAll(ctx))

	var badgeCalls int
	badge := e.Observe("badge", func(Counts) { badgeCalls++ })
	list := e.Observe("list", nil)
	defer badge.Unmount()
	defer list.Unmount()

	assert.Equal(t, 1, badge.Counts().Unread)
	assert.Equal(t, badge.Counts(), list.Counts())

	data, _ := json.Marshal(note("n3", false, 0))
	require.NoError(t, e.OnPush(ctx, Push{Data: data}))

	assert.Equal(t, 2, badge.Counts().Unread)
	assert.Equal(t, badge.Counts(), list.Counts())
	assert.Equal(t, e.Counts(), badge.Counts())
	assert.Equal(t, 1, badgeCalls)

	// A push that needs a refetch converges the same way.
	api.add(note("n4", false, 0))
	require.NoError(t, e.OnPush(ctx, Push{Type: "refresh"}))
	assert.Equal(t, badge.Counts(), list.Counts())
	assert.Equal(t, 2, badge.Counts().Unread)
}

func TestObserverUnmount(t *testing.T) {
	ctx := context.Background()
	e, api, _, _ := setup(t, note("n1", false, 0))

	o := e.Observe("dashboard", nil)
	assert.Equal(t, Counts{}, o.Counts())
	assert.Equal(t, "dashboard", o.Name())

	o.Unmount()
	assert.False(t, o.Mounted())

	require.NoError(t, e.FetchAll(ctx))
	assert.Equal(t, Counts{}, o.Counts())

	api.listErr = errors.New("boom")
	assert.NoError(t, o.Refresh(ctx))
}

func TestObserverRefresh(t *testing.T) {
	ctx := context.Background()
	e, api, _, _ := setup(t, note("n1", false, 0))
	o := e.Observe("list", nil)
	defer o.Unmount()

	require.NoError(t, o.Refresh(ctx))
	assert.Equal(t, 1, o.Counts().Unread)

	api.listErr = errors.New("boom")
	assert.Error(t, o.Refresh(ctx))
}

func TestNotificationLegacyID(t *testing.T) {
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"abc","type":"x","isRead":true}`), &n))
	assert.Equal(t, "abc", n.ID)
	assert.True(t, n.IsRead)
}
