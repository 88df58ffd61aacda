package badwords

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultListMatchesWholeWords(t *testing.T) {
	f := NewFilter()
	assert.True(t, f.Contains("This is BULLSHIT, move it"))
	assert.False(t, f.Contains("Running late, scrap the morning slot"))
	assert.False(t, f.Contains(""))
}

func TestLoadFileReplacesList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("\nfoo\n  Bar \n# comment\n"), 0o600))

	f := NewFilter()
	require.NoError(t, f.LoadFile(path))
	assert.Equal(t, 2, f.Len())
	assert.True(t, f.Contains("bar none"))
	assert.False(t, f.Contains("bullshit"))

	assert.Error(t, f.LoadFile(filepath.Join(t.TempDir(), "missing.txt")))
}

func TestAddRemove(t *testing.T) {
	f := NewFilter()
	require.Error(t, f.Add("  "))
	require.NoError(t, f.Add("Zonk"))
	assert.True(t, f.Contains("zonk!"))
	assert.True(t, f.Remove("ZONK"))
	assert.False(t, f.Remove("zonk"))
}
