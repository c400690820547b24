package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "warmup/pkg/logx"
)

func sampleRecord(id uint64, task string) Record {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return Record{
		ExecutionID: id,
		TaskID:      task,
		Status:      "Completed",
		StartedAt:   start,
		CompletedAt: start.Add(1500 * time.Millisecond),
		TookMS:      1500,
		Forced:      true,
		Metadata:    map[string]string{"IsForceRefresh": "true"},
	}
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	assert.Error(t, err)
}

func TestFileStoreAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "nested", "audit")}, logx.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.AppendExecution(ctx, sampleRecord(1, "Catalog.Load")))
	failed := sampleRecord(2, "Stock.Sync")
	failed.Status, failed.Error = "Failed", "upstream unavailable"
	require.NoError(t, st.AppendExecution(ctx, failed))
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
	assert.Error(t, st.AppendExecution(ctx, sampleRecord(3, "x")))

	f, err := os.Open(filepath.Join(dir, "nested", "audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var got []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		got = append(got, r)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "Catalog.Load", got[0].TaskID)
	assert.True(t, got[0].StartedAt.Equal(sampleRecord(1, "").StartedAt))
	assert.Equal(t, "upstream unavailable", got[1].Error)
}

func TestSQLiteStoreInsertsAndPrunes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second, Retain: 3}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	s := st.(*sqliteStore)
	s.pruneEvery = 5

	ctx := context.Background()
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, st.AppendExecution(ctx, sampleRecord(i, "Catalog.Load")))
	}

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions`).Scan(&n))
	assert.Equal(t, 3, n)

	var (
		minID  uint64
		forced int
		meta   string
	)
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT MIN(execution_id), MAX(forced), MAX(meta) FROM executions`).Scan(&minID, &forced, &meta))
	assert.Equal(t, uint64(3), minID)
	assert.Equal(t, 1, forced)
	assert.JSONEq(t, `{"IsForceRefresh":"true"}`, meta)
}
