package rootlock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	release, ok := TryAcquire(root)
	require.True(t, ok)

	_, ok = TryAcquire(root)
	assert.False(t, ok, "second holder must be rejected")

	_, ok = TryAcquire(filepath.Join(root, "."))
	assert.False(t, ok, "equivalent spellings share a lock")

	other, ok := TryAcquire(t.TempDir())
	require.True(t, ok, "other roots are independent")
	other()

	release()
	release() // idempotent

	again, ok := TryAcquire(root)
	require.True(t, ok)
	again()
}

func TestTryAcquireThroughSymlink(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(root, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	release, ok := TryAcquire(root)
	require.True(t, ok)
	defer release()

	_, ok = TryAcquire(link)
	assert.False(t, ok)
}
