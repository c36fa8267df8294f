package pathutil

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dir, name string
		want      string
		valid     bool
	}{
		{dir: "", name: "a.txt", want: "a.txt", valid: true},
		{dir: "ui/icons", name: "a.png", want: "ui/icons/a.png", valid: true},
		{dir: "ui", name: `sub\b.png`, want: "ui/sub/b.png", valid: true},
		{dir: "ui", name: "../../x", want: "ui/../../x"},
		{dir: "ui", name: "/abs", want: "ui//abs"},
		{dir: "", name: "", want: ""},
	}
	for _, tt := range tests {
		got := Join(tt.dir, tt.name)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.valid, fs.ValidPath(got), got)
	}
}

func TestDirAndLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Dir("index.tfi"))
	assert.Equal(t, "a/b", Dir("a/b/index.tfi"))
	assert.Equal(t, ".", Label(""))
	assert.Equal(t, "a/b", Label("a/b"))
}

func TestCleanDir(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"":       "",
		".":      "",
		"./":     "",
		"./a/b/": "a/b",
		`a\b`:    "a/b",
		"/a":     "a",
	} {
		assert.Equal(t, want, CleanDir(in), in)
	}
}
