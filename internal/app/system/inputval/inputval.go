// Package inputval validates user-supplied values before they reach the store.
package inputval

import (
	"net/mail"
	"strings"
)

// IsValidEmail reports whether s is a bare email address (no display name,
// no surrounding whitespace, no empty or doubled dots).
func IsValidEmail(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return false
	}
	return dotsOK(s[:at]) && dotsOK(s[at+1:])
}

func dotsOK(part string) bool {
	return !strings.HasPrefix(part, ".") &&
		!strings.HasSuffix(part, ".") &&
		!strings.Contains(part, "..")
}

var projectRoles = map[string]bool{"ADMIN": true, "EDITOR": true, "VIEWER": true}

// IsValidProjectRole reports whether role is a project member role.
func IsValidProjectRole(role string) bool {
	return projectRoles[strings.ToUpper(strings.TrimSpace(role))]
}

var orgRoles = map[string]bool{"OWNER": true, "ADMIN": true, "MEMBER": true}

// IsValidOrgRole reports whether role is an organization member role.
func IsValidOrgRole(role string) bool {
	return orgRoles[strings.ToUpper(strings.TrimSpace(role))]
}
