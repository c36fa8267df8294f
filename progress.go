package tfa

// ProgressEvent represents a progress update during a scan or extraction.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the index, archive or file currently being processed, if applicable.
	Path string

	// FilesDone is the number of items completed.
	FilesDone int

	// FilesTotal is the total number of items.
	// Zero indicates the total is unknown (e.g., during enumeration).
	FilesTotal int
}

// Fraction returns FilesDone/FilesTotal, or 0 when the total is unknown.
func (e ProgressEvent) Fraction() float64 {
	if e.FilesTotal <= 0 {
		return 0
	}
	return float64(e.FilesDone) / float64(e.FilesTotal)
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages, in the order a scan and extraction pass through them.
const (
	// StageEnumerating indicates the tree is being walked for index files.
	StageEnumerating ProgressStage = iota

	// StageDiffing indicates entries are being compared with the destination.
	StageDiffing

	// StageExtracting indicates files are being written.
	StageExtracting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageEnumerating:
		return "enumerating"
	case StageDiffing:
		return "diffing"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Events are delivered from the goroutine running the operation, in order.
type ProgressFunc func(ProgressEvent)

func (fn ProgressFunc) report(ev ProgressEvent) {
	if fn != nil {
		fn(ev)
	}
}
