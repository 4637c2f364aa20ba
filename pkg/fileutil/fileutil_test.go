package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlfabric/crawlfabric/pkg/fileutil"
)

func TestExtension(t *testing.T) {
	assert.Equal(t, ".pdf", fileutil.Extension("/docs/report.pdf"))
	assert.Equal(t, ".gz", fileutil.Extension("2024/01/02/abc.html.gz"))
	assert.Equal(t, ".png", fileutil.Extension("/img/LOGO.PNG"))
	assert.Equal(t, "", fileutil.Extension("/about"))
	assert.Equal(t, "", fileutil.Extension(""))
	assert.Equal(t, ".", fileutil.Extension("trailing."))
}

func TestEnsureDir_CreatesNestedPath(t *testing.T) {
	root := t.TempDir()

	err := fileutil.EnsureDir(root, "raw", "2024", "01")
	require.Nil(t, err)

	info, statErr := os.Stat(filepath.Join(root, "raw", "2024", "01"))
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestEnsureDir_ExistingDirIsNoop(t *testing.T) {
	root := t.TempDir()

	require.Nil(t, fileutil.EnsureDir(root, "q"))
	require.Nil(t, fileutil.EnsureDir(root, "q"))
}

func TestEnsureDir_FileInTheWayFails(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "q")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := fileutil.EnsureDir(root, "q", "sub")
	require.NotNil(t, err)

	var fe *fileutil.FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fileutil.ErrCausePathError, fe.Cause)
}
