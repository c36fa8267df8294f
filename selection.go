package tfa

import (
	"fmt"
	"slices"
	"strings"

	"github.com/meigma/tfa/internal/pathutil"
)

// Selection is a set of indexes chosen for extraction.
// Membership is by index path, so indexes from another scan of the same
// tree select the same directories. The zero value is an empty selection.
type Selection struct {
	paths map[string]struct{}
}

// Select returns a selection holding indexes.
func Select(indexes ...*Index) *Selection {
	s := &Selection{}
	for _, idx := range indexes {
		s.Add(idx)
	}
	return s
}

// Add puts idx into the selection.
func (s *Selection) Add(idx *Index) {
	if idx == nil {
		return
	}
	if s.paths == nil {
		s.paths = make(map[string]struct{})
	}
	s.paths[idx.Path] = struct{}{}
}

// Contains reports whether idx is selected. A nil selection is empty.
func (s *Selection) Contains(idx *Index) bool {
	if s == nil || idx == nil {
		return false
	}
	_, ok := s.paths[idx.Path]
	return ok
}

// Len returns the number of selected indexes.
func (s *Selection) Len() int {
	if s == nil {
		return 0
	}
	return len(s.paths)
}

// Paths returns the selected index paths in sorted order.
func (s *Selection) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// SelectChanged selects every index with at least one added or changed entry.
func (s *Scan) SelectChanged() *Selection {
	sel := &Selection{}
	for _, sum := range s.Indexes {
		if sum.Changed > 0 {
			sel.Add(sum.Index)
		}
	}
	return sel
}

// SelectAll selects every index of the scan.
func (s *Scan) SelectAll() *Selection {
	sel := &Selection{}
	for _, sum := range s.Indexes {
		sel.Add(sum.Index)
	}
	return sel
}

// SelectDirs selects the indexes in the given root-relative directories.
// "" and "." name the root. Unknown directories are an error.
func (s *Scan) SelectDirs(dirs ...string) (*Selection, error) {
	byDir := make(map[string]*Index, len(s.Indexes))
	for _, sum := range s.Indexes {
		byDir[sum.Index.Dir] = sum.Index
	}

	sel := &Selection{}
	var missing []string
	for _, dir := range dirs {
		idx, ok := byDir[pathutil.CleanDir(dir)]
		if !ok {
			missing = append(missing, dir)
			continue
		}
		sel.Add(idx)
	}
	if len(missing) > 0 {
		return sel, fmt.Errorf("tfa: no index in %s", strings.Join(missing, ", "))
	}
	return sel, nil
}
