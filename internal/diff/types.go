package diff

// Op classifies what a diff section does to a file.
type Op string

const (
	OpNew      Op = "new"
	OpDeleted  Op = "deleted"
	OpModified Op = "modified"
	OpRenamed  Op = "renamed"
)

// NullPath is the sentinel git uses for a side that does not exist.
const NullPath = "/dev/null"

// FileChange is one file touched by a diff. Path is the canonical
// repository-relative path (the destination path for renames). Body holds the
// raw content lines of the file's hunks for callers that need them.
type FileChange struct {
	Path       string
	Op         Op
	SourcePath string
	DestPath   string
	Body       []string
}

// FileSet is an ordered map of changes keyed by canonical path. Order is
// first-appearance order in the diff text.
type FileSet struct {
	order  []string
	byPath map[string]*FileChange
}

func newFileSet() *FileSet {
	return &FileSet{byPath: make(map[string]*FileChange)}
}

func (s *FileSet) add(fc *FileChange) {
	if _, seen := s.byPath[fc.Path]; !seen {
		s.order = append(s.order, fc.Path)
	}
	// A later diff --git section for the same path replaces the earlier one.
	s.byPath[fc.Path] = fc
}

// Paths returns canonical paths in diff order.
func (s *FileSet) Paths() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Get returns the change for a path, or nil.
func (s *FileSet) Get(path string) *FileChange {
	return s.byPath[path]
}

// Changes returns all changes in diff order.
func (s *FileSet) Changes() []*FileChange {
	out := make([]*FileChange, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, s.byPath[p])
	}
	return out
}

func (s *FileSet) Len() int {
	return len(s.order)
}
