package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bluebird/internal/config"
	"bluebird/internal/domain"
	"bluebird/internal/notifier"
)

type stubSource struct{}

func (stubSource) FetchLatest(context.Context, string) (*domain.Snapshot, error) {
	return &domain.Snapshot{}, nil
}

func (stubSource) FetchOne(context.Context, string, string) (*domain.Post, error) {
	return nil, domain.ErrRelatedUnresolved
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildLoops(t *testing.T) {
	cfg, err := config.Parse([]byte(`
instances:
  - usernames: [jack, biz]
    discord_webhook_url: https://discord.com/api/webhooks/1/abc
  - usernames: []
  - usernames: [ev]
    telegram_chat_id: 42
`))
	require.NoError(t, err)

	loops, err := buildLoops(cfg, stubSource{}, []notifier.Sink{}, nil, discardLogger())
	require.NoError(t, err)

	var names []string
	for _, l := range loops {
		names = append(names, l.Name())
	}
	assert.Equal(t, []string{"jack", "biz", "ev"}, names)
}

func TestBuildLoops_NoValidInstances(t *testing.T) {
	cfg, err := config.Parse([]byte("instances:\n  - usernames: [\"\"]\n"))
	require.NoError(t, err)

	_, err = buildLoops(cfg, stubSource{}, nil, nil, discardLogger())
	assert.Error(t, err)
}

func TestCheckConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instances:
  - usernames: [jack]
  - usernames: [biz]
    discord_webhook_url: "not a url"
`), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"check-config", "--config", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil); flagConfig = "" })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "instance 0: jack [ok]")
	assert.Contains(t, out.String(), "instance 1: biz [invalid:")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "bluebird dev (commit: none, built: unknown)\n", out.String())
}
