// Package normalize canonicalizes values read from or written to the store.
package normalize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var strict = bluemonday.StrictPolicy()

// Email trims and lowercases an email address. Emails are the natural key
// that reconciles users across collections.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name strips markup and collapses whitespace. Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(strict.Sanitize(s))), " ")
}

// Status trims and uppercases a status (ACTIVE, PENDING, ...).
func Status(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Role trims and uppercases a role (ADMIN, EDITOR, ...).
func Role(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Tier trims and uppercases a license tier.
func Tier(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// DisplayName picks the best human name available: name, then first and last
// name, then a name derived from the email's local part ("jane.doe+x" becomes
// "Jane Doe X").
func DisplayName(name, first, last, email string) string {
	if n := Name(name); n != "" {
		return n
	}
	if n := Name(first + " " + last); n != "" {
		return n
	}
	local, _, _ := strings.Cut(Email(email), "@")
	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// Initials returns up to two uppercase initials for name.
func Initials(name string) string {
	var b strings.Builder
	for _, w := range strings.Fields(name) {
		r := []rune(w)
		b.WriteString(strings.ToUpper(string(r[0])))
		if b.Len() >= 2 {
			break
		}
	}
	return b.String()
}
