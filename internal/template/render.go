// Package template substitutes "{{name}}"-style placeholders in a text body
// using a supplied bindings mapping. It renders unit overrides, machine
// config bodies, and cloud-init user-data the same way the host driver's
// unit templates used to be rendered, but against a flat string-to-string
// binding set rather than a Go struct.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches a "{{name}}" token, tolerating surrounding
// whitespace inside the braces the way the delimiter was written in practice.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// UnboundPlaceholderError reports a placeholder with no matching binding.
type UnboundPlaceholderError struct {
	Name string
}

func (e *UnboundPlaceholderError) Error() string {
	return fmt.Sprintf("template: unbound placeholder %q", e.Name)
}

// Render substitutes every "{{name}}" occurrence in body with bindings[name].
// It is pure: no file or network I/O, no side effects. Every placeholder
// found in body must have a matching key in bindings; the first one that
// doesn't is returned as an *UnboundPlaceholderError. Render does not
// recursively expand the substituted values themselves.
func Render(body string, bindings map[string]string) (string, error) {
	var firstErr error

	out := placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := bindings[name]
		if !ok {
			firstErr = &UnboundPlaceholderError{Name: name}
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Placeholders returns the distinct placeholder names referenced in body, in
// order of first appearance. Useful for validating a profile or cloud-init
// body against a known binding set before a render is attempted.
func Placeholders(body string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(body, -1)
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// MustRender is a convenience for call sites that have already validated
// bindings are complete (e.g. in tests) and want a panic instead of plumbing
// an error they know cannot occur.
func MustRender(body string, bindings map[string]string) string {
	out, err := Render(body, bindings)
	if err != nil {
		panic(strings.TrimSpace(err.Error()))
	}
	return out
}
