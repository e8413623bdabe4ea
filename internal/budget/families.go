package budget

import (
	"path"
	"regexp"
	"strings"
)

// FamilyClassifier groups paths into repeated-content families. Files in the
// same family are interchangeable representatives of one underlying change;
// only one per family is worth sending downstream.
type FamilyClassifier interface {
	// Classify returns the family key for a path and whether the path is the
	// family's canonical variant. ok is false for paths outside any family.
	Classify(p string) (family string, canonical bool, ok bool)
}

// LocaleFamilies recognizes per-language resource files laid out under a
// translations directory, e.g. locales/en.json, i18n/fr-FR.yml,
// src/lang/de/messages.json. The canonical variant is the English one.
type LocaleFamilies struct {
	// CanonicalCode defaults to "en".
	CanonicalCode string
}

var (
	localeDirs = map[string]bool{
		"locales":      true,
		"locale":       true,
		"i18n":         true,
		"lang":         true,
		"langs":        true,
		"translations": true,
	}
	langCodeRe = regexp.MustCompile(`^[a-z]{2,3}([_-][A-Za-z]{2,4})?$`)
)

func (c LocaleFamilies) Classify(p string) (string, bool, bool) {
	canonical := c.CanonicalCode
	if canonical == "" {
		canonical = "en"
	}

	segs := strings.Split(path.Clean(p), "/")
	for i, seg := range segs[:max(len(segs)-1, 0)] {
		if !localeDirs[strings.ToLower(seg)] {
			continue
		}

		rest := segs[i+1:]

		// Layout 1: locales/<code>.<ext>
		if len(rest) == 1 {
			base := rest[0]
			ext := path.Ext(base)
			code := strings.TrimSuffix(base, ext)
			if langCodeRe.MatchString(code) {
				family := strings.Join(segs[:i+1], "/") + "/*" + ext
				return family, langMatches(code, canonical), true
			}
		}

		// Layout 2: locales/<code>/<same file per language>
		if len(rest) >= 2 && langCodeRe.MatchString(rest[0]) {
			family := strings.Join(segs[:i+1], "/") + "/*/" + strings.Join(rest[1:], "/")
			return family, langMatches(rest[0], canonical), true
		}
	}
	return "", false, false
}

func langMatches(code, canonical string) bool {
	code = strings.ToLower(strings.ReplaceAll(code, "_", "-"))
	return code == canonical || strings.HasPrefix(code, canonical+"-")
}
