package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congreso/internal"
	"congreso/internal/dataset"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "congreso.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMasterRecordsReplaceAndKeepOrder(t *testing.T) {
	db := openTestDB(t)

	first := dataset.New("Diputado.Id", "nombre", "match_score")
	first.Append([]string{"42", "Juan Pérez", "95"})
	first.Append([]string{"7", "Ana Soto", "88"})
	require.NoError(t, db.SaveMasterRecords("legislators", "Diputado.Id", "trace-1", first))

	got, err := db.MasterRecords("legislators")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.Columns, got.Columns)
	assert.Equal(t, first.Rows, got.Rows)

	second := dataset.New("Diputado.Id", "nombre", "match_score")
	second.Append([]string{"7", "Ana Soto", "90"})
	require.NoError(t, db.SaveMasterRecords("legislators", "Diputado.Id", "trace-2", second))

	got, err = db.MasterRecords("legislators")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"7", "Ana Soto", "90"}}, got.Rows)

	rec, err := db.GetMasterRecord("legislators", "7")
	require.NoError(t, err)
	assert.Equal(t, "90", rec["match_score"])

	rec, err = db.GetMasterRecord("legislators", "42")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMasterRecordsErrors(t *testing.T) {
	db := openTestDB(t)

	got, err := db.MasterRecords("missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	tbl := dataset.New("id")
	tbl.Append([]string{"1"})
	tbl.Append([]string{"1"})
	assert.Error(t, db.SaveMasterRecords("dup", "id", "t", tbl), "keys must be unique")
	assert.Error(t, db.SaveMasterRecords("dup", "nope", "t", tbl))
}

func TestTranslations(t *testing.T) {
	db := openTestDB(t)

	tm := map[string]internal.MatchResult{
		"PUC":     {Label: "Pontificia Universidad Católica de Chile", Score: 100, Stage: internal.StageAlias, Status: internal.StatusMatched},
		"Harvard": {Label: "Otra", Score: 41.5, Stage: internal.StageNone, Status: internal.StatusUnknown},
	}
	require.NoError(t, db.SaveTranslations("trace-1", internal.EntityUniversity, tm))

	all, err := db.ListTranslations("trace-1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Harvard", all[0].Raw)
	assert.Equal(t, internal.EntityUniversity, all[1].Entity)
	assert.Equal(t, tm["PUC"], all[1].Result)

	unknown, err := db.ListTranslations("trace-1", internal.StatusUnknown)
	require.NoError(t, err)
	require.Len(t, unknown, 1)
	assert.Equal(t, 41.5, unknown[0].Result.Score)
}

func TestRunsAndMetadata(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.InsertRun("a", "standardize bios", internal.RunTimings{"total_ms": 12.5}, internal.RunCounts{"rows": 3}))
	require.NoError(t, db.InsertRun("b", "dedupe", nil, internal.RunCounts{"kept": 1}))

	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].TraceID)
	assert.Equal(t, 12.5, runs[1].Timings["total_ms"])
	assert.Equal(t, 3, runs[1].Counts["rows"])

	v, err := db.GetMetadata("embedder")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, db.SetMetadata("embedder", "ollama:nomic-embed-text"))
	require.NoError(t, db.SetMetadata("embedder", "onnx:minilm"))
	v, err = db.GetMetadata("embedder")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "onnx:minilm", *v)
}
