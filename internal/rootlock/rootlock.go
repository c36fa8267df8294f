// Package rootlock serializes scans and extractions against one source root.
package rootlock

import (
	"path/filepath"
	"sync"
)

var (
	mu     sync.Mutex
	active = make(map[string]struct{})
)

// TryAcquire claims root for the caller.
// It returns false if another holder has it. The returned release function
// must be called exactly once when ok is true.
func TryAcquire(root string) (release func(), ok bool) {
	key := canonical(root)

	mu.Lock()
	defer mu.Unlock()
	if _, held := active[key]; held {
		return nil, false
	}
	active[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			mu.Lock()
			delete(active, key)
			mu.Unlock()
		})
	}, true
}

func canonical(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return filepath.Clean(root)
}
