package workdir_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alkime/callcoach/internal/workdir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	t.Setenv("HOME", "/home/rep")

	root, err := workdir.Root()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/rep", "Documents", "CallCoach"), root)
}

func TestLayout(t *testing.T) {
	l := workdir.Layout{Dir: t.TempDir()}

	require.NoError(t, l.Prep())

	info, err := os.Stat(l.AudioDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Equal(t, filepath.Join(l.Dir, "callcoach.db"), l.DatabasePath())
	assert.Equal(t, filepath.Join(l.Dir, "exports", "clip.mp3"), l.ExportPath("../../clip.mp3"))

	_, err = os.Stat(filepath.Dir(l.ExportPath("clip.mp3")))
	assert.NoError(t, err)
}
