// Package testutil holds golden file helpers shared by package tests.
package testutil

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Update rewrites golden files instead of comparing against them:
//
//	go test ./internal/report -update
var Update = flag.Bool(
	"update",
	false,
	"update golden files",
)

func goldenPath(name string) string {
	return filepath.Join("testdata", name+".golden")
}

// CompareWithGolden checks actual against testdata/<name>.golden.
func CompareWithGolden(t *testing.T, name string, actual []byte) {
	t.Helper()
	path := goldenPath(name)

	if *Update {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, actual, 0o644), "failed to write golden file")
		return
	}

	expected, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read golden file")
	require.Equal(t, string(expected), string(actual), "golden mismatch for %s", name)
}

// CompareJSONWithGolden indents v and compares it like CompareWithGolden.
func CompareJSONWithGolden(t *testing.T, name string, v any) {
	t.Helper()
	actual, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err, "failed to marshal actual JSON")
	CompareWithGolden(t, name, actual)
}
