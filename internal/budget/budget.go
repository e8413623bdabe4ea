package budget

import (
	"path"
	"sort"
	"strings"

	"repobridge/internal/diff"
	"repobridge/internal/errors"
)

// TruncationMarker is appended whenever content is cut at a line boundary.
const TruncationMarker = "... [content truncated]"

// tokensPerChar is the rough characters-per-token ratio used for estimation.
const tokensPerChar = 4

// Tier ranks retained files when the global file cap bites.
type Tier int

const (
	TierSource Tier = iota // code files
	TierConfig             // configuration and everything else
	TierFamily             // low-priority family samples
)

// File is one candidate for inclusion: content on both sides plus the
// operation the diff performs on it. Empty content with Op new/deleted means
// the side does not exist.
type File struct {
	Path   string
	Op     diff.Op
	Before string // upstream base / existing content
	After  string // incoming content
}

// SelectedFile is a retained (possibly truncated) candidate.
type SelectedFile struct {
	Path      string
	Op        diff.Op
	Before    string
	After     string
	Truncated bool
	Tier      Tier
}

// RedundantFile records a family member dropped in favor of a representative.
type RedundantFile struct {
	Path           string
	Family         string
	Representative string
}

// Selection is the budgeted subset presented to patch synthesis.
type Selection struct {
	Selected        []SelectedFile
	Excluded        []string        // build/generated artifacts, never budgeted
	Redundant       []RedundantFile // family members; apply same change by analogy
	SkippedForSize  []string        // past the file cap or shed for the ceiling
	DiffText        string          // possibly truncated
	DiffTruncated   bool
	EstimatedTokens int
	SoftExceeded    bool
}

// Limits carries every budgeting tunable. A zero value disables that limit.
type Limits struct {
	SoftTokenCeiling  int
	HardTokenCeiling  int
	PerFileBytes      int
	FamilySampleBytes int
	MaxFiles          int
	MaxDiffBytes      int
}

// Budgeter filters, deduplicates, prioritizes and truncates candidate files
// so a synthesis request stays under the token ceiling. Pure and
// deterministic: same inputs and limits, same Selection.
type Budgeter struct {
	limits   Limits
	families FamilyClassifier
}

func NewBudgeter(limits Limits, families FamilyClassifier) *Budgeter {
	if families == nil {
		families = LocaleFamilies{}
	}
	return &Budgeter{limits: limits, families: families}
}

// excludedDirs and excludedSuffixes mark build output, vendored dependencies
// and generated sources that never belong in a synthesis request.
var excludedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"out":          true,
	"target":       true,
	"__pycache__":  true,
}

var excludedSuffixes = []string{
	".min.js", ".min.css", ".map", ".lock", ".pb.go", ".generated.go",
	".exe", ".dll", ".so", ".dylib", ".o", ".a", ".class", ".pyc",
}

var sourceExts = map[string]bool{
	".go": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".py": true, ".rb": true, ".java": true, ".kt": true, ".rs": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cs": true,
	".swift": true, ".sh": true, ".sql": true, ".proto": true,
}

func isExcluded(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if excludedDirs[strings.ToLower(seg)] {
			return true
		}
	}
	lower := strings.ToLower(p)
	for _, suf := range excludedSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}

func tierOf(p string, familyMember bool) Tier {
	if familyMember {
		return TierFamily
	}
	if sourceExts[strings.ToLower(path.Ext(p))] {
		return TierSource
	}
	return TierConfig
}

// Select runs the full budgeting pass over candidates (in diff order) and the
// raw diff text. It fails with a BUDGET_EXCEEDED error only when the request
// cannot be reduced under the hard ceiling.
func (b *Budgeter) Select(files []File, diffText string) (*Selection, error) {
	sel := &Selection{}

	// Diff truncation happens first; the diff always ships.
	sel.DiffText, sel.DiffTruncated = Truncate(diffText, b.limits.MaxDiffBytes)

	// Step 1: exclusion. Step 2: redundancy collapse.
	representatives := b.pickRepresentatives(files)

	type candidate struct {
		file   File
		tier   Tier
		family bool
	}
	var retained []candidate

	for _, f := range files {
		if isExcluded(f.Path) {
			sel.Excluded = append(sel.Excluded, f.Path)
			continue
		}
		family, _, inFamily := b.families.Classify(f.Path)
		if inFamily {
			rep := representatives[family]
			if rep != f.Path {
				sel.Redundant = append(sel.Redundant, RedundantFile{
					Path:           f.Path,
					Family:         family,
					Representative: rep,
				})
				continue
			}
		}
		retained = append(retained, candidate{file: f, tier: tierOf(f.Path, inFamily), family: inFamily})
	}

	// Step 4: global cap with stable tier ordering. Sort is stable, so files
	// within a tier keep diff order.
	sort.SliceStable(retained, func(i, j int) bool {
		return retained[i].tier < retained[j].tier
	})
	if b.limits.MaxFiles > 0 && len(retained) > b.limits.MaxFiles {
		for _, c := range retained[b.limits.MaxFiles:] {
			sel.SkippedForSize = append(sel.SkippedForSize, c.file.Path)
		}
		retained = retained[:b.limits.MaxFiles]
	}

	// Step 3: per-file truncation; family samples get a smaller ceiling.
	for _, c := range retained {
		limit := b.limits.PerFileBytes
		if c.family && b.limits.FamilySampleBytes > 0 {
			limit = b.limits.FamilySampleBytes
		}
		before, tb := Truncate(c.file.Before, limit)
		after, ta := Truncate(c.file.After, limit)
		sel.Selected = append(sel.Selected, SelectedFile{
			Path:      c.file.Path,
			Op:        c.file.Op,
			Before:    before,
			After:     after,
			Truncated: tb || ta,
			Tier:      c.tier,
		})
	}

	// Steps 5-6: estimate and enforce ceilings. When over the hard ceiling,
	// shed files lowest-priority-first rather than silently exceeding it.
	sel.EstimatedTokens = b.estimate(sel)
	for b.limits.HardTokenCeiling > 0 && sel.EstimatedTokens > b.limits.HardTokenCeiling && len(sel.Selected) > 0 {
		last := sel.Selected[len(sel.Selected)-1]
		sel.Selected = sel.Selected[:len(sel.Selected)-1]
		sel.SkippedForSize = append(sel.SkippedForSize, last.Path)
		sel.EstimatedTokens = b.estimate(sel)
	}
	if b.limits.HardTokenCeiling > 0 && sel.EstimatedTokens > b.limits.HardTokenCeiling {
		return nil, errors.BudgetExceeded(sel.EstimatedTokens, b.limits.HardTokenCeiling)
	}
	if b.limits.SoftTokenCeiling > 0 && sel.EstimatedTokens > b.limits.SoftTokenCeiling {
		sel.SoftExceeded = true
	}

	return sel, nil
}

// pickRepresentatives chooses one path per family: the canonical variant when
// present, else the lexicographically smallest member.
func (b *Budgeter) pickRepresentatives(files []File) map[string]string {
	reps := make(map[string]string)
	canonical := make(map[string]bool)
	for _, f := range files {
		if isExcluded(f.Path) {
			continue
		}
		family, isCanonical, ok := b.families.Classify(f.Path)
		if !ok {
			continue
		}
		cur, seen := reps[family]
		switch {
		case !seen:
			reps[family] = f.Path
			canonical[family] = isCanonical
		case isCanonical && !canonical[family]:
			reps[family] = f.Path
			canonical[family] = true
		case !canonical[family] && f.Path < cur:
			reps[family] = f.Path
		}
	}
	return reps
}

func (b *Budgeter) estimate(sel *Selection) int {
	total := EstimateTokens(sel.DiffText)
	for _, f := range sel.Selected {
		total += EstimateTokens(f.Before) + EstimateTokens(f.After)
	}
	return total
}

// EstimateTokens is the rough chars-per-token heuristic used for pre-flight
// request sizing.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + tokensPerChar - 1) / tokensPerChar
}

// Truncate cuts text at the last complete line boundary before limit bytes
// and appends the truncation marker. Content is never split mid-line. A
// limit of zero disables truncation.
func Truncate(text string, limit int) (string, bool) {
	if limit <= 0 || len(text) <= limit {
		return text, false
	}
	cut := strings.LastIndexByte(text[:limit], '\n')
	if cut < 0 {
		// A single line longer than the limit; drop it entirely rather than
		// splitting it.
		return TruncationMarker + "\n", true
	}
	return text[:cut+1] + TruncationMarker + "\n", true
}
