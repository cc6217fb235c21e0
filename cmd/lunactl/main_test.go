package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0m3kk/lunafold/config"
	"github.com/0m3kk/lunafold/eventsrc"
	"github.com/0m3kk/lunafold/infra/memory"
	"github.com/0m3kk/lunafold/infra/sqlite"
	"github.com/0m3kk/lunafold/publishing"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("lunactl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseArgs(t *testing.T) {
	opts, err := parseArgs(newFlagSet(), []string{"-kind", "offer", "-id", "contoso", "-secrets"})
	require.NoError(t, err)
	assert.Equal(t, options{kind: "offer", id: "contoso", secrets: true}, opts)

	_, err = parseArgs(newFlagSet(), []string{"-kind", "offer"})
	assert.ErrorContains(t, err, "-id is required")

	_, err = parseArgs(newFlagSet(), []string{"-kind", "widget", "-id", "x"})
	assert.ErrorContains(t, err, "unknown kind")

	_, err = parseArgs(newFlagSet(), []string{"-id", "myapp", "-secrets"})
	assert.ErrorContains(t, err, "only applies to offers")
}

func appendEvents(t *testing.T, store *memory.Store, events ...eventsrc.Event) {
	t.Helper()
	registry := publishing.NewRegistry()
	recs := make([]eventsrc.Record, 0, len(events))
	for _, evt := range events {
		rec, err := registry.Encode(evt)
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	_, err := store.Append(context.Background(), recs)
	require.NoError(t, err)
}

func TestRun_PrintsDump(t *testing.T) {
	// GIVEN
	store := memory.NewStore()
	appendEvents(t, store,
		&publishing.CreateLunaApplicationEvent{BaseEvent: eventsrc.NewBaseEvent("myapp", "", "tester")},
		&publishing.CreateLunaAPIEvent{BaseEvent: eventsrc.NewBaseEvent("myapp", "sentiment", "tester")},
	)
	var out bytes.Buffer

	// WHEN
	err := run(context.Background(), &out, store, config.Config{}, options{kind: "application", id: "myapp", snapshot: true})

	// THEN
	require.NoError(t, err)
	var dump struct {
		Kind       string `json:"kind"`
		ID         string `json:"id"`
		SequenceID int64  `json:"sequence_id"`
		State      struct {
			Kind string `json:"kind"`
			Data struct {
				Name string `json:"name"`
				APIs []struct {
					Name string `json:"name"`
				} `json:"apis"`
			} `json:"data"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &dump))
	assert.Equal(t, "application", dump.Kind)
	assert.Equal(t, int64(2), dump.SequenceID)
	assert.Equal(t, "application", dump.State.Kind)
	assert.Equal(t, "myapp", dump.State.Data.Name)
	require.Len(t, dump.State.Data.APIs, 1)
	assert.Equal(t, "sentiment", dump.State.Data.APIs[0].Name)

	// AND the snapshot flag stored the state
	_, ok, err := store.LatestSnapshot(context.Background(), publishing.Kind, "myapp")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_NotFound(t *testing.T) {
	var out bytes.Buffer

	err := run(context.Background(), &out, memory.NewStore(), config.Config{}, options{kind: "application", id: "ghost"})

	assert.ErrorContains(t, err, "not found")
	assert.Zero(t, out.Len())
}

func TestRun_ReportsFoldErrorKind(t *testing.T) {
	// GIVEN a log that does not start with the creation event
	store := memory.NewStore()
	appendEvents(t, store,
		&publishing.CreateLunaAPIEvent{BaseEvent: eventsrc.NewBaseEvent("myapp", "sentiment", "tester")},
	)

	// WHEN
	err := run(context.Background(), io.Discard, store, config.Config{}, options{kind: "application", id: "myapp"})

	// THEN
	require.Error(t, err)
	assert.Equal(t, eventsrc.KindMissingSnapshot, eventsrc.KindOf(err))
}

func seedSQLite(t *testing.T, events ...eventsrc.Event) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lunafold.db")
	t.Setenv("LUNA_STORE", "sqlite")
	t.Setenv("LUNA_BROKER", "none")
	t.Setenv("LUNA_SQLITE_PATH", path)

	store, err := sqlite.Open(path)
	require.NoError(t, err)
	defer store.Close()
	registry := publishing.NewRegistry()
	for _, evt := range events {
		rec, err := registry.Encode(evt)
		require.NoError(t, err)
		_, err = store.Append(context.Background(), []eventsrc.Record{rec})
		require.NoError(t, err)
	}
}

func TestRealMain_ExitCodes(t *testing.T) {
	seedSQLite(t,
		&publishing.CreateLunaApplicationEvent{BaseEvent: eventsrc.NewBaseEvent("myapp", "", "tester")},
		&publishing.CreateLunaAPIEvent{BaseEvent: eventsrc.NewBaseEvent("broken", "sentiment", "tester")},
	)

	t.Run("dump", func(t *testing.T) {
		var stdout, stderr bytes.Buffer

		code := realMain([]string{"-id", "myapp"}, &stdout, &stderr)

		assert.Equal(t, 0, code, stderr.String())
		assert.Contains(t, stdout.String(), `"id": "myapp"`)
	})

	t.Run("fold error", func(t *testing.T) {
		var stdout, stderr bytes.Buffer

		code := realMain([]string{"-id", "broken"}, &stdout, &stderr)

		assert.Equal(t, 1, code)
		assert.Contains(t, stderr.String(), "MissingSnapshot")
		assert.Zero(t, stdout.Len())
	})

	t.Run("bad arguments", func(t *testing.T) {
		var stdout, stderr bytes.Buffer

		code := realMain([]string{"-kind", "offer"}, &stdout, &stderr)

		assert.Equal(t, 2, code)
		assert.Contains(t, stderr.String(), "-id is required")
	})
}
