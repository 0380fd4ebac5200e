package raster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o600))

	_, err := New(150).Inspect(path)
	assert.ErrorContains(t, err, "failed to validate PDF")
}

func TestInspect_MissingFile(t *testing.T) {
	_, err := New(150).Inspect(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}
