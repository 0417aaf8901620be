package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/config"
)

func TestRun_Keygen(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"keygen"}, &stdout, &stderr)

	assert.Equal(t, exitOK, code)
	assert.Len(t, strings.TrimSpace(stdout.String()), 50)
	assert.Empty(t, stderr.String())
}

func TestRun_MissingSecretIsConfigError(t *testing.T) {
	t.Setenv("GROUPCHAT_AUTH_SECRET", "")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"-env-file", filepath.Join(t.TempDir(), "none.env")}, &stdout, &stderr)

	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr.String(), "config error")
	assert.Contains(t, stderr.String(), "groupchat keygen")
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitConfig, run(context.Background(), []string{"-nope"}, &stdout, &stderr))
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitOK, run(context.Background(), []string{"-h"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "-config")
}

func TestServe_StopsWhenContextEnds(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "chat.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Auth.Secret = strings.Repeat("k", config.MinSecretLength)
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	assert.Equal(t, exitOK, serve(ctx, cfg, zerolog.Nop()))
}

func TestServe_ListenFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "chat.db")
	cfg.HTTP.Host = "203.0.113.1"
	cfg.HTTP.Port = 1
	cfg.Auth.Secret = strings.Repeat("k", config.MinSecretLength)

	assert.Equal(t, exitRuntime, serve(context.Background(), cfg, zerolog.Nop()))
}
