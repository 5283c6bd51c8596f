// Package redact masks sensitive descriptors in address complements.
//
// Field workers sometimes describe residents ("peruvian family", "old lady
// lives alone") in the complement. Those words are replaced by asterisks of
// the same length before the text is stored.
package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// terms are matched case-insensitively as whole words, with optional plural.
var terms = []string{
	// nationality
	"argentino", "argentina", "boliviano", "boliviana", "brasileño", "brasileña",
	"brasileiro", "brasileira", "chileno", "chilena", "chino", "china",
	"colombiano", "colombiana", "coreano", "coreana", "cubano", "cubana",
	"dominicano", "dominicana", "ecuatoriano", "ecuatoriana", "haitiano", "haitiana",
	"japonés", "japonesa", "mexicano", "mexicana", "paraguayo", "paraguaya",
	"peruano", "peruana", "uruguayo", "uruguaya", "venezolano", "venezolana",
	"extranjero", "extranjera", "estrangeiro", "estrangeira", "inmigrante", "imigrante",
	"foreigner", "immigrant", "bolivian", "peruvian", "chinese", "venezuelan",
	"colombian", "haitian", "paraguayan", "korean", "japanese",
	// demographic
	"anciano", "anciana", "idoso", "idosa", "viejo", "vieja", "elderly",
	"soltero", "soltera", "viudo", "viuda", "solteiro", "solteira", "widow", "widower",
	"negro", "negra", "blanco", "blanca", "indígena", "indigenous",
	"gitano", "gitana", "cigano", "cigana", "gay", "lesbiana", "lesbian", "trans",
}

var pattern = buildPattern(terms)

func buildPattern(words []string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	// \b in RE2 is ASCII-only, so word edges are matched explicitly.
	return regexp.MustCompile(`(?i)(^|[^\p{L}])((?:` + strings.Join(quoted, "|") + `)(?:e?s)?)([^\p{L}]|$)`)
}

// Complement masks every sensitive term in s.
func Complement(s string) string {
	if s == "" {
		return s
	}
	// Adjacent matches share a separator, so repeat until stable.
	for {
		out := pattern.ReplaceAllStringFunc(s, mask)
		if out == s {
			return out
		}
		s = out
	}
}

func mask(m string) string {
	sub := pattern.FindStringSubmatch(m)
	if len(sub) != 4 {
		return m
	}
	return sub[1] + strings.Repeat("*", utf8.RuneCountInString(sub[2])) + sub[3]
}

// Contains reports whether s holds any sensitive term.
func Contains(s string) bool {
	return pattern.MatchString(s)
}
