package tfa

import "time"

// DefaultSnapshotLayout names snapshot directories by their start time.
const DefaultSnapshotLayout = "2006-01-02 15-04-05"

// ExtractOption configures an Extract call.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	snapshotRoot   string
	snapshotLayout string
	now            func() time.Time
	progress       ProgressFunc
}

// ExtractWithSnapshots enables advanced mode for ModeChanges.
//
// Each run creates root/<start time>/old holding the previously extracted
// copies of changed files and the pre-run manifest, and
// root/<start time>/new holding the new copies, before the destination is
// updated. Without this option ModeChanges counts changes but writes nothing.
func ExtractWithSnapshots(root string) ExtractOption {
	return func(c *extractConfig) {
		c.snapshotRoot = root
	}
}

// ExtractWithSnapshotLayout sets the time layout used to name snapshot
// directories. The default is DefaultSnapshotLayout.
func ExtractWithSnapshotLayout(layout string) ExtractOption {
	return func(c *extractConfig) {
		c.snapshotLayout = layout
	}
}

// ExtractWithClock sets the clock used to name snapshot directories.
func ExtractWithClock(now func() time.Time) ExtractOption {
	return func(c *extractConfig) {
		c.now = now
	}
}

// ExtractWithProgress sets a callback invoked after each file.
func ExtractWithProgress(fn ProgressFunc) ExtractOption {
	return func(c *extractConfig) {
		c.progress = fn
	}
}
