package synth

import (
	"fmt"
	"strings"

	"repobridge/internal/budget"
	"repobridge/internal/diff"
)

// BuildPrompt assembles the synthesis prompt from the diff, the budgeted file
// sections and the notes block. Identical inputs produce identical prompts.
func BuildPrompt(sel *budget.Selection) string {
	var b strings.Builder

	b.WriteString(`You are preparing a pull request that ports an upstream change into a downstream repository.
Study the upstream diff and the current downstream file contents, then produce an adapted patch.

Respond in exactly this format:

TITLE: <one-line pull request title>
DESCRIPTION:
<markdown description of the change>
PATCH:
<unified diff, starting with "diff --git", using downstream paths>

`)

	b.WriteString("## Upstream diff\n\n```diff\n")
	b.WriteString(sel.DiffText)
	if !strings.HasSuffix(sel.DiffText, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")
	if sel.DiffTruncated {
		b.WriteString("(diff truncated for size)\n")
	}

	b.WriteString("\n## Files\n")
	for _, f := range sel.Selected {
		fmt.Fprintf(&b, "\n### %s (%s)\n", f.Path, f.Op)
		writeSide(&b, "upstream after change", f.After, f.Op == diff.OpDeleted)
		writeSide(&b, "downstream current", f.Before, f.Op == diff.OpNew)
		if f.Truncated {
			b.WriteString("(content truncated for size)\n")
		}
	}

	writeNotes(&b, sel)
	return b.String()
}

func writeSide(b *strings.Builder, label, content string, absent bool) {
	if absent || content == "" {
		fmt.Fprintf(b, "%s: does not exist\n", label)
		return
	}
	fmt.Fprintf(b, "%s:\n```\n%s", label, content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")
}

func writeNotes(b *strings.Builder, sel *budget.Selection) {
	if len(sel.Excluded) == 0 && len(sel.Redundant) == 0 && len(sel.SkippedForSize) == 0 {
		return
	}
	b.WriteString("\n## Notes\n")
	if len(sel.Excluded) > 0 {
		b.WriteString("\nExcluded as build or generated artifacts (do not patch):\n")
		for _, p := range sel.Excluded {
			fmt.Fprintf(b, "- %s\n", p)
		}
	}
	if len(sel.Redundant) > 0 {
		b.WriteString("\nRedundant family members; apply the same change by analogy with their representative:\n")
		for _, r := range sel.Redundant {
			fmt.Fprintf(b, "- %s (see %s)\n", r.Path, r.Representative)
		}
	}
	if len(sel.SkippedForSize) > 0 {
		b.WriteString("\nSkipped for size; patch them from the diff alone:\n")
		for _, p := range sel.SkippedForSize {
			fmt.Fprintf(b, "- %s\n", p)
		}
	}
}
