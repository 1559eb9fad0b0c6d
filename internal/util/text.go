package util

import (
	"regexp"
	"strings"
)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeWhitespace trims and collapses whitespace to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// NormalizeTag folds a hashtag to its comparison form: "#FitLife " -> "fitlife".
func NormalizeTag(tag string) string {
	t := strings.TrimSpace(tag)
	t = strings.TrimLeft(t, "#")
	return strings.ToLower(NormalizeWhitespace(t))
}

// NormalizeTags normalizes tags and drops empty results, preserving order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if n := NormalizeTag(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// SplitAndTrim splits s on commas and drops empty fields.
func SplitAndTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
