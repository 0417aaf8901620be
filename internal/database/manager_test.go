package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "groupchat/pkg/database"
	"groupchat/pkg/interfaces"
	"groupchat/pkg/types"
)

func setupTestDB(t *testing.T) *Manager {
	t.Helper()
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "nested", "test.db")

	manager, err := NewManager(config, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestManager_AppendAssignsIDAndTimestamp(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()
	before := time.Now().UTC().Add(-time.Second)

	first, err := manager.Append(ctx, types.Message{Username: "alice", Text: "hi"})
	require.NoError(t, err)
	second, err := manager.Append(ctx, types.Message{Username: "bob", Text: "hello"})
	require.NoError(t, err)

	assert.Positive(t, first.ID)
	assert.Greater(t, second.ID, first.ID)
	assert.True(t, first.CreatedAt.After(before))
	assert.Equal(t, "alice", first.Username)
}

func TestManager_ReadLastNewestFirst(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		_, err := manager.Append(ctx, types.Message{Username: "alice", Text: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	messages, err := manager.ReadLast(ctx, 50)
	require.NoError(t, err)
	require.Len(t, messages, 50)
	assert.Equal(t, "m59", messages[0].Text)
	assert.Equal(t, "m10", messages[49].Text)
	for i := 1; i < len(messages); i++ {
		assert.Greater(t, messages[i-1].ID, messages[i].ID)
	}
}

func TestManager_ReadLastEmpty(t *testing.T) {
	manager := setupTestDB(t)

	messages, err := manager.ReadLast(context.Background(), 50)
	require.NoError(t, err)
	assert.Empty(t, messages)

	messages, err = manager.ReadLast(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestManager_ImageRoundTrip(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	_, err := manager.Append(ctx, types.Message{Username: "alice", Image: "iVBORw0KGgo=", IsSticker: true})
	require.NoError(t, err)
	_, err = manager.Append(ctx, types.Message{Username: "bob", Text: "text only"})
	require.NoError(t, err)

	messages, err := manager.ReadLast(ctx, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Empty(t, messages[0].Image)
	assert.False(t, messages[0].IsSticker)
	assert.Equal(t, "iVBORw0KGgo=", messages[1].Image)
	assert.True(t, messages[1].IsSticker)
}

func TestManager_Users(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	created, err := manager.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	assert.Positive(t, created.ID)

	_, err = manager.CreateUser(ctx, "alice", "other")
	assert.ErrorIs(t, err, interfaces.ErrUsernameTaken)

	found, err := manager.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "hash", found.PasswordHash)

	_, err = manager.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, interfaces.ErrUserNotFound)
}

func TestManager_ConcurrentWrites(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := manager.Append(ctx, types.Message{Username: "u", Text: fmt.Sprintf("%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	messages, err := manager.ReadLast(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, messages, 20)
}

func TestManager_HealthCheck(t *testing.T) {
	manager := setupTestDB(t)
	assert.NoError(t, manager.HealthCheck(context.Background()))
}

func TestManager_CancelledContext(t *testing.T) {
	manager := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := manager.Append(ctx, types.Message{Username: "alice", Text: "late"})
	assert.Error(t, err)
}

func TestManager_Close(t *testing.T) {
	manager := setupTestDB(t)

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close(), "second close is a no-op")

	_, err := manager.Append(context.Background(), types.Message{Username: "alice", Text: "after close"})
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestManager_ReopenKeepsHistory(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "reopen.db")

	first, err := NewManager(config, zerolog.Nop())
	require.NoError(t, err)
	_, err = first.Append(context.Background(), types.Message{Username: "alice", Text: "persisted"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewManager(config, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	messages, err := second.ReadLast(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "persisted", messages[0].Text)
}
