package types

import (
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collation names in this module are a BCP-47 language tag optionally
// suffixed "_ci" for case-insensitive comparison (e.g. "en", "en_ci",
// "und_ci"), rather than MySQL-style collation identifiers — this stays
// simple while still exercising golang.org/x/text/collate's real
// locale-aware ordering instead of a binary byte compare.
var (
	collatorCacheMu sync.Mutex
	collatorCache   = make(map[string]*collate.Collator)
)

func parseCollationName(name string) (locale string, caseInsensitive bool) {
	locale = name
	if rest, ok := strings.CutSuffix(name, "_ci"); ok {
		locale, caseInsensitive = rest, true
	}
	if locale == "" {
		locale = "und"
	}
	return locale, caseInsensitive
}

// collatorFor returns a cached *collate.Collator for the given collation
// name, building one on first use. An unparseable locale tag falls back to
// language.Und rather than erroring, since collation is advisory string
// ordering, not data validation.
func collatorFor(name string) *collate.Collator {
	collatorCacheMu.Lock()
	defer collatorCacheMu.Unlock()
	if c, ok := collatorCache[name]; ok {
		return c
	}

	locale, caseInsensitive := parseCollationName(name)
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Und
	}
	var opts []collate.Option
	if caseInsensitive {
		opts = append(opts, collate.IgnoreCase)
	}
	c := collate.New(tag, opts...)
	collatorCache[name] = c
	return c
}
