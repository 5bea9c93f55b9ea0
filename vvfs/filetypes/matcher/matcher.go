// Package matcher implements the file name rules used to associate names with
// file types and to decide whether a name is ignored.
package matcher

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// FileNameMatcher is a pure predicate over a file name (no directory part).
type FileNameMatcher interface {
	// Matches reports whether name is accepted by the rule.
	Matches(name string) bool

	// PresentableString is the canonical user-facing form, e.g. "*.go".
	PresentableString() string

	// Key identifies the rule; two matchers with the same key are the same rule.
	Key() string
}

// ExactName matches one literal file name, optionally ignoring case.
type ExactName struct {
	name       string
	ignoreCase bool
}

// NewExactName returns a case-sensitive exact name matcher.
func NewExactName(name string) ExactName {
	return ExactName{name: name}
}

// NewExactNameAnyCase returns an exact name matcher that ignores case.
func NewExactNameAnyCase(name string) ExactName {
	return ExactName{name: name, ignoreCase: true}
}

func (m ExactName) Matches(name string) bool {
	if m.ignoreCase {
		return strings.EqualFold(m.name, name)
	}
	return m.name == name
}

func (m ExactName) PresentableString() string { return m.name }

func (m ExactName) Key() string {
	if m.ignoreCase {
		return "anycase:" + strings.ToLower(m.name)
	}
	return "exact:" + m.name
}

// Name returns the literal file name.
func (m ExactName) Name() string { return m.name }

// IgnoreCase reports whether matching is case-insensitive.
func (m ExactName) IgnoreCase() bool { return m.ignoreCase }

// Extension matches names ending in "." + extension, ignoring case.
// Compound extensions such as "tar.gz" are allowed.
type Extension struct {
	ext string
}

// NewExtension returns an extension matcher. A leading "." or "*." is stripped.
func NewExtension(ext string) Extension {
	ext = strings.TrimPrefix(ext, "*")
	ext = strings.TrimPrefix(ext, ".")
	return Extension{ext: strings.ToLower(ext)}
}

func (m Extension) Matches(name string) bool {
	n := len(name) - len(m.ext)
	if n < 1 || name[n-1] != '.' {
		return false
	}
	return strings.EqualFold(name[n:], m.ext)
}

func (m Extension) PresentableString() string { return "*." + m.ext }

func (m Extension) Key() string { return "ext:" + m.ext }

// Extension returns the lower-cased extension without the leading dot.
func (m Extension) Extension() string { return m.ext }

// Wildcard matches names against a pattern where '*' is any run of characters
// and '?' is exactly one character. All other characters are literal.
type Wildcard struct {
	pattern string
	re      *regexp.Regexp
}

// NewWildcard compiles pattern into a wildcard matcher.
func NewWildcard(pattern string) Wildcard {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return Wildcard{pattern: pattern, re: regexp.MustCompile(b.String())}
}

func (m Wildcard) Matches(name string) bool { return m.re.MatchString(name) }

func (m Wildcard) PresentableString() string { return m.pattern }

func (m Wildcard) Key() string { return "glob:" + m.pattern }

// Parse builds the most specific matcher for a pattern: "*.ext" becomes an
// Extension, anything else containing '*' or '?' a Wildcard, and the rest an
// ExactName.
func Parse(pattern string) (FileNameMatcher, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("empty file name pattern")
	}
	if strings.ContainsRune(pattern, '/') {
		return nil, fmt.Errorf("file name pattern %q must not contain a path separator", pattern)
	}
	if rest, ok := strings.CutPrefix(pattern, "*."); ok && rest != "" && !strings.ContainsAny(rest, "*?") {
		return NewExtension(rest), nil
	}
	if strings.ContainsAny(pattern, "*?") {
		return NewWildcard(pattern), nil
	}
	return NewExactName(pattern), nil
}

// MustParse is Parse for built-in patterns known to be valid.
func MustParse(pattern string) FileNameMatcher {
	m, err := Parse(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseList splits a separator-delimited list of patterns, skipping empty items.
func ParseList(list, sep string) ([]FileNameMatcher, error) {
	var out []FileNameMatcher
	for _, item := range strings.Split(list, sep) {
		if strings.TrimSpace(item) == "" {
			continue
		}
		m, err := Parse(item)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ExtensionOf returns the text after the last '.' of name, or "" if there is none.
func ExtensionOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i+1:]
}

// HashBangInterpreter extracts the interpreter name from the first line of a
// script: "#!/usr/bin/env python3 -u" yields "python3", "#!/bin/sh" yields "sh".
func HashBangInterpreter(text string) (string, bool) {
	rest, ok := strings.CutPrefix(text, "#!")
	if !ok {
		return "", false
	}
	if i := strings.IndexAny(rest, "\r\n"); i >= 0 {
		rest = rest[:i]
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	interpreter := path.Base(fields[0])
	if interpreter == "env" {
		interpreter = ""
		for _, f := range fields[1:] {
			if strings.HasPrefix(f, "-") || strings.Contains(f, "=") {
				continue
			}
			interpreter = path.Base(f)
			break
		}
	}
	if interpreter == "" || interpreter == "." || interpreter == "/" {
		return "", false
	}
	return interpreter, true
}
