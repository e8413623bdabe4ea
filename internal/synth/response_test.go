package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	t.Run("LabeledSections", func(t *testing.T) {
		raw := `TITLE: Port upstream logging fix
DESCRIPTION:
Brings the retry logging change downstream.

Adapted for the renamed package.
PATCH:
diff --git a/log.go b/log.go
--- a/log.go
+++ b/log.go
@@ -1 +1 @@
-old
+new
`
		resp := ParseResponse(raw)
		assert.Equal(t, "Port upstream logging fix", resp.Title)
		assert.Contains(t, resp.Description, "Adapted for the renamed package.")
		assert.True(t, len(resp.PatchText) > 0)
		assert.Contains(t, resp.PatchText, "diff --git a/log.go b/log.go")
		assert.Contains(t, resp.PatchText, "+new")
	})

	t.Run("FencedPatch", func(t *testing.T) {
		raw := "TITLE: t\nDESCRIPTION:\nd\nPATCH:\n```diff\ndiff --git a/f b/f\n--- a/f\n+++ b/f\n@@ -1 +1 @@\n-a\n+b\n```\n"
		resp := ParseResponse(raw)
		require.Contains(t, resp.PatchText, "diff --git a/f b/f")
		assert.NotContains(t, resp.PatchText, "```")
	})

	t.Run("FallbackScanForDiffHeader", func(t *testing.T) {
		raw := "Here is the change you asked for:\n\ndiff --git a/f b/f\n--- a/f\n+++ b/f\n@@ -1 +1 @@\n-a\n+b\n"
		resp := ParseResponse(raw)
		assert.Empty(t, resp.Title)
		assert.Contains(t, resp.PatchText, "diff --git a/f b/f")
	})

	t.Run("FallbackScanForMarkerPair", func(t *testing.T) {
		raw := "some preamble\n--- a/f\n+++ b/f\n@@ -1 +1 @@\n-a\n+b\n"
		resp := ParseResponse(raw)
		assert.Contains(t, resp.PatchText, "--- a/f")
		assert.Contains(t, resp.PatchText, "+b")
	})

	t.Run("NothingUsable", func(t *testing.T) {
		resp := ParseResponse("I could not produce a patch, sorry.")
		assert.Empty(t, resp.PatchText)
	})
}
