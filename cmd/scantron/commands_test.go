package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scantron-grader/internal/sheettest"
	"go-scantron-grader/pkg/models"
)

const answerKey = `
assignmentId: A1
versions:
  V1:
    - {question: 1, answer: B}
    - {question: 2, answer: C}
`

func writePage(t *testing.T, path string, sheet sheettest.Sheet) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, sheettest.Render(sheet)))
}

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.Bytes()
}

func TestGradeResolveReport(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	keys := filepath.Join(dir, "keys")
	pages := filepath.Join(dir, "pages")
	require.NoError(t, os.MkdirAll(keys, 0o755))
	require.NoError(t, os.MkdirAll(pages, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(keys, "A1.yaml"), []byte(answerKey), 0o644))

	writePage(t, filepath.Join(pages, "01.png"), sheettest.Sheet{
		Code:    sheettest.Payload(sheettest.Identity("S1", 2)),
		Answers: map[int]string{1: "B", 2: "C"},
	})
	writePage(t, filepath.Join(pages, "02.png"), sheettest.Sheet{Answers: map[int]string{1: "B"}})

	common := []string{"--store", "sqlite", "--db", filepath.Join(dir, "grades.db"), "--answer-keys", keys, "--ocr=false", "--log-level", "error"}

	var batch models.BatchResponse
	require.NoError(t, json.Unmarshal(run(t, append([]string{"grade", "-a", "A1", pages}, common...)...), &batch))
	assert.Equal(t, 1, batch.Graded)
	assert.Equal(t, 1, batch.Unidentified)
	require.Len(t, batch.Pending, 1)
	assert.Equal(t, 2, batch.Pending[0].PageNumber)

	var rec models.GradeRecord
	require.NoError(t, json.Unmarshal(run(t, append([]string{"resolve", "-a", "A1", "-p", "2", "-s", "S2"}, common...)...), &rec))
	assert.Equal(t, "S2", rec.StudentID)
	assert.Equal(t, models.SourceManual, rec.Source)
	assert.Equal(t, 50.0, rec.Percentage)

	var rep models.AssignmentReport
	require.NoError(t, json.Unmarshal(run(t, append([]string{"report", "-a", "A1"}, common...)...), &rep))
	assert.Equal(t, 2, rep.Stats.Count)
	assert.Equal(t, 75.0, rep.Stats.AverageScore)
	assert.Empty(t, rep.Pending)
	assert.Equal(t, int64(2), rep.Revision)
}

func TestCollectPages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	extra := filepath.Join(t.TempDir(), "z.png")
	require.NoError(t, os.WriteFile(extra, nil, 0o644))

	pages, err := collectPages([]string{dir, extra})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.png"), extra}, pages)

	_, err = collectPages([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
	_, err = collectPages([]string{t.TempDir()})
	assert.Error(t, err)
}

func TestBindChangedFlags(t *testing.T) {
	fs := pflag.NewFlagSet("scantron", pflag.ContinueOnError)
	fs.Int("workers", 0, "")
	fs.String("store", "sqlite", "")
	require.NoError(t, fs.Parse([]string{"--workers=3"}))

	v := viper.New()
	v.SetDefault("workers", 8)
	v.SetDefault("store", "memory")

	require.NoError(t, bindChangedFlags(v, fs))
	assert.Equal(t, 3, v.GetInt("workers"))
	assert.Equal(t, "memory", v.GetString("store"), "unset flags keep the lower layers")
}
