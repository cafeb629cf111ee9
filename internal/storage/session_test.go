package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.BeginSession(ctx, "posts")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, StatusRunning, sess.Status)
	assert.False(t, sess.StartedAt.IsZero())

	sess.ItemsProcessed = 10
	sess.ItemsNew = 4
	sess.ItemsUpdated = 2
	sess.ItemsUnchanged = 3
	sess.Errors = append(sess.Errors, ItemError{
		ContentType: "posts",
		RemoteID:    42,
		Kind:        "malformed",
		Message:     "missing id field",
	})
	sess.Status = StatusPartial
	require.NoError(t, s.FinalizeSession(ctx, sess))

	got, err := s.LatestSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, StatusPartial, got.Status)
	assert.Equal(t, 10, got.ItemsProcessed)
	assert.Equal(t, 4, got.ItemsNew)
	assert.Equal(t, 2, got.ItemsUpdated)
	assert.Equal(t, 3, got.ItemsUnchanged)
	assert.False(t, got.CompletedAt.IsZero())
	require.Len(t, got.Errors, 1)
	assert.Equal(t, ItemError{
		ContentType: "posts",
		RemoteID:    42,
		Kind:        "malformed",
		Message:     "missing id field",
	}, got.Errors[0])
}

func TestLatestSession_Empty(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.LatestSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestListSessions_MostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		sess, err := s.BeginSession(ctx, "all")
		require.NoError(t, err)
		sess.Status = StatusCompleted
		require.NoError(t, s.FinalizeSession(ctx, sess))
		ids = append(ids, sess.ID)
		time.Sleep(5 * time.Millisecond)
	}

	sessions, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, ids[2], sessions[0].ID)
	assert.Equal(t, ids[1], sessions[1].ID)
}

func TestFailedSessionIsQueryable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.BeginSession(ctx, "posts")
	require.NoError(t, err)
	sess.Status = StatusFailed
	sess.Errors = append(sess.Errors, ItemError{
		ContentType: "posts",
		Kind:        "transport",
		Message:     "site does not serve the REST API",
	})
	require.NoError(t, s.FinalizeSession(ctx, sess))

	got, err := s.LatestSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 0, got.ItemsProcessed)
	assert.Equal(t, 1, got.ErrorCount())
}
