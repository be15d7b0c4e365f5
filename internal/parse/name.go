package parse

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	prefixRe    = regexp.MustCompile(`(?i)^park\s*&\s*ride\s*-\s*`)
	wsRe        = regexp.MustCompile(`\s+`)
	qualifierRe = regexp.MustCompile(`\(([^)]+)\)\s*$`)
)

// ParsedName holds the structured data parsed from an upstream facility
// name.
type ParsedName struct {
	// Name is the cleaned display name, qualifier included, e.g.
	// "Gordon Henry St (north)".
	Name string
	// Base is the name without the trailing qualifier.
	Base string
	// Qualifier is the trailing parenthetical, e.g. "north" or
	// "multi-level". Empty when absent.
	Qualifier string
}

// DisplayName strips the upstream "Park&Ride - " prefix and normalizes
// whitespace.
func DisplayName(raw string) string {
	s := strings.TrimSpace(raw)
	s = prefixRe.ReplaceAllString(s, "")
	s = wsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ParseName extracts the display name and optional qualifier from a raw
// upstream facility name string.
func ParseName(raw string) (ParsedName, error) {
	name := DisplayName(raw)
	if name == "" {
		return ParsedName{}, fmt.Errorf("unable to parse facility name: %q", raw)
	}

	parsed := ParsedName{Name: name, Base: name}
	if loc := qualifierRe.FindStringSubmatch(name); loc != nil {
		parsed.Qualifier = strings.TrimSpace(loc[1])
		parsed.Base = strings.TrimSpace(strings.TrimSuffix(name, loc[0]))
		if parsed.Base == "" {
			// A bare qualifier is not a name.
			return ParsedName{}, fmt.Errorf("unable to parse facility name: %q", raw)
		}
	}
	return parsed, nil
}
