package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"recipechat/internal/domain"
)

const testCorpus = `[
  {"id": 38, "name": "Chocolate Cake", "description": "a rich chocolate dessert for birthdays",
   "ingredients": ["flour", "cocoa powder"], "quantities": ["2 cups", "1 cup"], "instructions": ["mix", "bake"]},
  {"id": 1, "name": "Chicken Soup", "description": "warm broth with vegetables",
   "ingredients": ["chicken", "carrots"], "instructions": ["simmer"]},
  {"id": 2, "name": "Caesar Salad", "description": "crisp romaine with parmesan",
   "ingredients": ["romaine", "parmesan"], "instructions": ["toss"]}
]`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "recipes"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "recipes", "desserts.json"), []byte(testCorpus), 0644))
	return dir
}

func TestIngestQueryStatus(t *testing.T) {
	dir := setupCorpus(t)

	out, err := run(t, "--dir", dir, "--log-level", "error", "ingest")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries written: 3")

	out, err = run(t, "--dir", dir, "--log-level", "error", "query", "-q", "chocolate dessert", "--json", "-k", "2")
	require.NoError(t, err)

	var candidates []domain.Candidate
	require.NoError(t, json.Unmarshal([]byte(out), &candidates))
	require.NotEmpty(t, candidates)
	assert.LessOrEqual(t, len(candidates), 2)
	assert.Equal(t, int64(38), candidates[0].RecipeID)

	out, err = run(t, "--dir", dir, "--log-level", "error", "index", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Recipes:   3")
	assert.Contains(t, out, "Metric:    cosine")
}

func TestIndexDrop_RequiresConfirmation(t *testing.T) {
	dir := setupCorpus(t)

	_, err := run(t, "--dir", dir, "--log-level", "error", "index", "drop")
	assert.Error(t, err)

	_, err = run(t, "--dir", dir, "--log-level", "error", "ingest")
	require.NoError(t, err)

	out, err := run(t, "--dir", dir, "--log-level", "error", "index", "drop", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Index dropped.")
	indexDropYes = false

	out, err = run(t, "--dir", dir, "--log-level", "error", "index", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not created")
}

func TestQuery_EmptyIndexFails(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, "--dir", dir, "--log-level", "error", "query", "-q", "chocolate")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "<1s", formatDuration(0))
	assert.Equal(t, "1m5s", formatDuration(65e9))
}
