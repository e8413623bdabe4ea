// Package patch checks the structural validity of synthesized patch text and
// falls back to the raw upstream diff when the synthesized one is unusable.
package patch

import (
	"strings"

	"repobridge/internal/errors"
)

// minMeaningfulLines rejects patches structurally too small to mean anything:
// a real patch has at least a header, both file markers, a hunk line and one
// content line.
const minMeaningfulLines = 5

// Validate returns usable patch text: the candidate when it is structurally
// valid, else the fallback diff, else a NO_USABLE_PATCH error.
func Validate(patchText, fallbackDiffText string) (string, error) {
	if IsValid(patchText) {
		return normalize(patchText), nil
	}
	if IsValid(fallbackDiffText) {
		return normalize(fallbackDiffText), nil
	}
	return "", errors.NoUsablePatch("neither synthesized patch nor fallback diff is structurally valid")
}

// IsValid reports whether text looks like an applicable unified diff: at
// least one diff --git header, paired ---/+++ markers, a hunk header or
// content line, and a minimum of non-blank lines.
func IsValid(patchText string) bool {
	if strings.TrimSpace(patchText) == "" {
		return false
	}

	var (
		header, oldMarker, newMarker, hunkOrContent bool
		nonBlank                                    int
	)
	for _, line := range strings.Split(patchText, "\n") {
		if strings.TrimSpace(line) != "" {
			nonBlank++
		}
		switch {
		case strings.HasPrefix(line, "diff --git "):
			header = true
		case strings.HasPrefix(line, "--- "):
			oldMarker = true
		case strings.HasPrefix(line, "+++ "):
			newMarker = true
		case strings.HasPrefix(line, "@@"):
			hunkOrContent = true
		case newMarker && (strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") || strings.HasPrefix(line, " ")):
			hunkOrContent = true
		}
	}

	return header && oldMarker && newMarker && hunkOrContent && nonBlank >= minMeaningfulLines
}

func normalize(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
