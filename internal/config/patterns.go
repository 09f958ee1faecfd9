package config

import (
	"fmt"
	"regexp"
	"strings"
)

// CompilePattern turns a rule pattern into a matcher. Plain patterns return a
// nil regexp and are matched as case-insensitive substrings by the caller.
// Patterns with glob metacharacters compile to an anchored case-insensitive
// regexp, and the "re:" prefix compiles the remainder as a raw regexp.
// Malformed patterns are rejected here so evaluation never fails.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(pattern, "re:"); ok {
		compiled, err := regexp.Compile("(?i)" + rest)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
		}
		return compiled, nil
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return nil, nil
	}
	translated, err := translateGlob(pattern)
	if err != nil {
		return nil, err
	}
	compiled, err := regexp.Compile(translated)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return compiled, nil
}

// MatchPattern applies a compiled or substring pattern to a value.
func MatchPattern(pattern string, compiled *regexp.Regexp, value string) bool {
	if strings.TrimSpace(pattern) == "" {
		return true
	}
	if compiled != nil {
		return compiled.MatchString(value)
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func translateGlob(pattern string) (string, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		case '[':
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == ']' && j > i+1 {
					end = j
					break
				}
			}
			if end < 0 {
				return "", fmt.Errorf("glob pattern %q has unterminated character class", pattern)
			}
			b.WriteString(string(runes[i : end+1]))
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return b.String(), nil
}
