package diff

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"repobridge/internal/errors"
)

// headerRe matches `diff --git a/<p1> b/<p2>` with either side optionally
// quoted (git quotes paths containing spaces or control characters).
var headerRe = regexp.MustCompile(`^diff --git ("(?:[^"\\]|\\.)*"|\S+) ("(?:[^"\\]|\\.)*"|\S+)\s*$`)

// Parse scans unified-diff text into an ordered FileSet. Malformed sections
// degrade to "no record for that file"; only non-decodable input is an error.
func Parse(diffText string) (*FileSet, error) {
	if strings.ContainsRune(diffText, 0) || !utf8.ValidString(diffText) {
		return nil, errors.Parse("diff input is not decodable text", nil)
	}

	set := newFileSet()
	var current *FileChange
	inHunk := false

	flush := func() {
		if current == nil {
			return
		}
		set.add(current)
		current = nil
	}

	for _, line := range strings.Split(diffText, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flush()

			m := headerRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
			if m == nil {
				// Noise that merely resembles a header; skip it.
				continue
			}
			src, okSrc := headerPath(m[1], "a/")
			dst, okDst := headerPath(m[2], "b/")
			if !okSrc || !okDst {
				continue
			}

			op := OpModified
			switch {
			case src == NullPath:
				op = OpNew
			case dst == NullPath:
				op = OpDeleted
			case src != dst:
				op = OpRenamed
			}

			canonical := dst
			if dst == NullPath {
				canonical = src
			}

			current = &FileChange{
				Path:       canonical,
				Op:         op,
				SourcePath: src,
				DestPath:   dst,
			}
			inHunk = false
			continue
		}

		if current == nil {
			continue
		}

		// The ---/+++ markers only precede the first hunk; afterwards a line
		// like `--- x` is a removed content line starting with `-- x`.
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunk = true
		case strings.HasPrefix(line, "new file mode"):
			current.Op = OpNew
		case strings.HasPrefix(line, "deleted file mode"):
			current.Op = OpDeleted
		case !inHunk && strings.HasPrefix(line, "--- "):
			if strings.TrimRight(line[4:], "\r") == NullPath {
				current.Op = OpNew
			}
		case !inHunk && strings.HasPrefix(line, "+++ "):
			if strings.TrimRight(line[4:], "\r") == NullPath {
				current.Op = OpDeleted
			}
		case inHunk && (strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") || strings.HasPrefix(line, " ")):
			current.Body = append(current.Body, line)
		}
	}
	flush()

	return set, nil
}

// headerPath unquotes one side of a diff --git header and strips its a/ or b/
// prefix. The /dev/null sentinel passes through unchanged.
func headerPath(raw, prefix string) (string, bool) {
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return "", false
		}
		raw = unquoted
	}
	if raw == NullPath {
		return NullPath, true
	}
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	p := raw[len(prefix):]
	if p == "" {
		return "", false
	}
	return p, true
}
