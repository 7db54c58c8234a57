package normalize

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"user@example.com", "user@example.com"},
		{"USER@EXAMPLE.COM", "user@example.com"},
		{"  User@Example.Com  ", "user@example.com"},
		{"", ""},
		{"   ", ""},
		{"Mixed.Case@Domain.ORG", "mixed.case@domain.org"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Email(tt.input)
			if got != tt.want {
				t.Errorf("Email(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"John Doe", "John Doe"},
		{"  John Doe  ", "John Doe"},
		{"", ""},
		{"   ", ""},
		{"UPPERCASE NAME", "UPPERCASE NAME"}, // Name preserves case
		{"lowercase name", "lowercase name"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Name(tt.input)
			if got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNameStripsMarkup(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"<b>Jane</b>   Doe", "Jane Doe"},
		{"<script>x</script>Ann", "Ann"},
		{"Line\nBreak", "Line Break"},
		{"Pat O'Brien & Co", "Pat O'Brien & Co"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Name(tt.input); got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"active", "ACTIVE"},
		{"ACTIVE", "ACTIVE"},
		{"  Pending  ", "PENDING"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Status(tt.input)
			if got != tt.want {
				t.Errorf("Status(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRole(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"admin", "ADMIN"},
		{"  Editor  ", "EDITOR"},
		{"VIEWER", "VIEWER"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Role(tt.input)
			if got != tt.want {
				t.Errorf("Role(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name, first, last, email string
		want                     string
	}{
		{"Ada Lovelace", "X", "Y", "a@x.io", "Ada Lovelace"},
		{"", "Grace", "Hopper", "g@x.io", "Grace Hopper"},
		{"", "", "", "jane.doe@x.io", "Jane Doe"},
		{"", "", "", "mary_ann-smith+ops@x.io", "Mary Ann Smith Ops"},
		{"", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := DisplayName(tt.name, tt.first, tt.last, tt.email)
			if got != tt.want {
				t.Errorf("DisplayName(%q, %q, %q, %q) = %q, want %q", tt.name, tt.first, tt.last, tt.email, got, tt.want)
			}
		})
	}
}

func TestInitials(t *testing.T) {
	tests := map[string]string{
		"Ada Lovelace":   "AL",
		"grace":          "G",
		"Mary Ann Smith": "MA",
		"":               "",
	}
	for in, want := range tests {
		if got := Initials(in); got != want {
			t.Errorf("Initials(%q) = %q, want %q", in, got, want)
		}
	}
}
