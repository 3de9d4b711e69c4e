package wildcard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestDirStore_Load(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "color.txt", "# colors\nred\n\n  <blue|green>  \n")
	writeFile(t, root, "styles/art.txt", "oil\nwatercolor\n")
	writeFile(t, root, "people.yaml", "names:\n  - ada\n  - grace\nroles:\n  lead: [captain]\n")
	writeFile(t, root, "sizes.yml", "- 1\n- 2.5\n- true\n")
	writeFile(t, root, "moods.json", `{"happy": ["joyful", "glad"], "sad": "blue"}`)
	writeFile(t, root, "notes.md", "ignored")
	writeFile(t, root, ".hidden/secret.txt", "ignored")
	writeFile(t, root, "empty.txt", "# only a comment\n")

	store, err := OpenDir(root)
	require.NoError(t, err)

	want := map[string][]string{
		"color":             {"red", "<blue|green>"},
		"styles/art":        {"oil", "watercolor"},
		"people/names":      {"ada", "grace"},
		"people/roles/lead": {"captain"},
		"sizes":             {"1", "2.5", "true"},
		"moods/happy":       {"joyful", "glad"},
		"moods/sad":         {"blue"},
	}
	got := make(map[string][]string)
	for _, name := range store.Names() {
		got[name] = store.GetAllValues(name)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DirStore contents mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"joyful", "glad", "blue"}, store.GetAllValues("moods/*"))
	assert.Equal(t, []string{}, store.GetAllValues("empty"))
}

func TestDirStore_Reload(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "color.txt", "red\n")

	store, err := OpenDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"red"}, store.GetAllValues("color"))

	writeFile(t, root, "color.txt", "green\n")
	writeFile(t, root, "shape.txt", "circle\n")
	require.NoError(t, store.Reload())
	assert.Equal(t, []string{"green"}, store.GetAllValues("color"))
	assert.Equal(t, []string{"circle"}, store.GetAllValues("shape"))

	// a broken file keeps the previous contents
	writeFile(t, root, "bad.yaml", "key: [unclosed\n")
	err = store.Reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
	assert.Equal(t, []string{"green"}, store.GetAllValues("color"))
}

func TestOpenDir_Errors(t *testing.T) {
	_, err := OpenDir("")
	assert.Error(t, err)

	_, err = OpenDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	root := t.TempDir()
	writeFile(t, root, "file.txt", "x")
	_, err = OpenDir(filepath.Join(root, "file.txt"))
	assert.ErrorContains(t, err, "not a directory")

	writeFile(t, root, "nested.yaml", "- [a, b]\n")
	_, err = OpenDir(root)
	assert.ErrorContains(t, err, "nested collections")
}
