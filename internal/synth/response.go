package synth

import "strings"

// Response is the parsed collaborator output. Fields may be empty; structural
// validation of PatchText belongs to the patch package.
type Response struct {
	Title       string
	Description string
	PatchText   string
}

// ParseResponse extracts the TITLE: / DESCRIPTION: / PATCH: sections from raw
// completion text, tolerating a fenced patch block. When the labels are
// missing it falls back to scanning for the first diff header.
func ParseResponse(raw string) Response {
	var resp Response
	lines := strings.Split(raw, "\n")

	section := ""
	var desc, patch []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "TITLE:"):
			resp.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "TITLE:"))
			section = "title"
			continue
		case strings.HasPrefix(trimmed, "DESCRIPTION:"):
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "DESCRIPTION:")); rest != "" {
				desc = append(desc, rest)
			}
			section = "description"
			continue
		case strings.HasPrefix(trimmed, "PATCH:"):
			section = "patch"
			continue
		}
		switch section {
		case "description":
			desc = append(desc, line)
		case "patch":
			patch = append(patch, line)
		}
	}

	resp.Description = strings.TrimSpace(strings.Join(desc, "\n"))
	resp.PatchText = stripFences(strings.Join(patch, "\n"))

	if strings.TrimSpace(resp.PatchText) == "" {
		resp.PatchText = scanForDiff(lines)
	}
	return resp
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:] // opening fence, possibly with a language tag
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// scanForDiff finds the first unified-diff start: a `diff --git` header, or
// failing that a `---` line with a `+++` partner below it.
func scanForDiff(lines []string) string {
	for i, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			return trimTrailingFence(lines[i:])
		}
	}
	for i, line := range lines {
		if strings.HasPrefix(line, "--- ") {
			for _, later := range lines[i+1:] {
				if strings.HasPrefix(later, "+++ ") {
					return trimTrailingFence(lines[i:])
				}
			}
		}
	}
	return ""
}

func trimTrailingFence(lines []string) string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
