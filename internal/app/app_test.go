package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "bookkeeper.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestConfigPath(t *testing.T) {
	t.Setenv(ConfigEnv, "/etc/bookkeeper.yaml")
	assert.Equal(t, "local.yaml", ConfigPath("local.yaml"))
	assert.Equal(t, "/etc/bookkeeper.yaml", ConfigPath(""))
}

func TestOpen_DepsWithoutOracle(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(context.Background(), writeConfig(t, "storage:\n  backend: sqlite\n  path: "+filepath.Join(dir, "db", "bk.db")+"\n"))
	require.NoError(t, err)
	defer rt.Close()

	d, err := rt.Deps(context.Background(), false)
	require.NoError(t, err)
	assert.NotNil(t, d.Store)
	assert.Nil(t, d.Oracle)
	assert.Nil(t, d.Storage)
	assert.FileExists(t, filepath.Join(dir, "db", "bk.db"))
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), writeConfig(t, "journal:\n  policy: lenient\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal.policy")
}

func TestDeps_BayesTrainsOnStoredSessions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rt, err := Open(ctx, writeConfig(t, "oracle:\n  provider: bayes\nstorage:\n  dir: "+dir+"\n"))
	require.NoError(t, err)
	defer rt.Close()

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	meta := domain.SessionMeta{SessionID: "session_20240301_000000_abcdef12", CreatedAt: now}
	require.NoError(t, rt.Store.Create(ctx, meta))
	history := []domain.CategorizationResult{
		{TransactionID: "trans_0", Description: "Office rent March", Amount: decimal.NewFromInt(-1000), AccountCode: "5100", Confidence: 0.95, Version: 1, Source: domain.SourceOracle},
		{TransactionID: "trans_1", Description: "Customer invoice payment", Amount: decimal.NewFromInt(500), AccountCode: "4000", Confidence: 0.95, Version: 1, Source: domain.SourceOracle},
	}
	require.NoError(t, rt.Store.Append(ctx, meta.SessionID, history...))

	training, err := rt.Training(ctx)
	require.NoError(t, err)
	assert.Len(t, training, 2)

	d, err := rt.Deps(ctx, true)
	require.NoError(t, err)
	assert.NotNil(t, d.Oracle)
}
