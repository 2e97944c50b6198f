package database

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApplyDir_MissingDirIsNoop(t *testing.T) {
	migrator := NewMigrator(nil, testLogger())

	err := migrator.ApplyDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
}

func TestApplyDir_IgnoresNonMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("not sql"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_init.down.sql"), []byte("DROP TABLE x;"), 0o644))

	migrator := NewMigrator(nil, testLogger())

	err := migrator.ApplyDir(context.Background(), dir)
	require.NoError(t, err, "only .up.sql files count; none present means nothing to do")
}
