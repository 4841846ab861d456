package httphandler

import (
	"html/template"
	"strings"
	"time"
	"unicode/utf8"
)

// TemplateFuncs returns the custom template functions for HTML templates.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		// Time formatting
		"formatDateTime": formatDateTime,

		// String helpers
		"initials":  initials,
		"pluralize": pluralize,

		// Conditional helpers
		"eq":  eq,
		"not": not,
	}
}

// formatDateTime accepts a time.Time or *time.Time so optional timestamps render as "".
func formatDateTime(v any) string {
	var t time.Time
	switch tv := v.(type) {
	case time.Time:
		t = tv
	case *time.Time:
		if tv == nil {
			return ""
		}
		t = *tv
	default:
		return ""
	}
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006 15:04")
}

func pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

func initials(name string) string {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(firstRune(parts[0]))
	default:
		return strings.ToUpper(firstRune(parts[0]) + firstRune(parts[len(parts)-1]))
	}
}

func firstRune(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	return string(r)
}

func eq(a, b any) bool {
	return a == b
}

func not(a bool) bool {
	return !a
}
