package translate

import (
	"strings"

	"golang.org/x/text/language"
)

// BaseLanguage reduces a language tag such as "ru-RU" or "pt_BR" to its base
// subtag ("ru", "pt"). Unparseable input falls back to the text before the
// first separator.
func BaseLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" || tag == "auto" {
		return tag
	}
	if parsed, err := language.Parse(strings.ReplaceAll(tag, "_", "-")); err == nil {
		if base, conf := parsed.Base(); conf != language.No {
			return base.String()
		}
	}
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return tag[:i]
	}
	return tag
}

// NeedsTranslation reports whether text written in source must be translated
// to reach target. Detected ("auto" or empty) sources count as English, the
// language TMDB credits come back in.
func NeedsTranslation(source, target string) bool {
	dst := BaseLanguage(target)
	if dst == "" || dst == "auto" {
		return false
	}
	src := BaseLanguage(source)
	if src == "" || src == "auto" {
		src = "en"
	}
	return src != dst
}
