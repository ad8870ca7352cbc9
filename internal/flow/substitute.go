package flow

import (
	"regexp"
)

// referencePattern matches {name} placeholders in prompts. Names follow
// identifier rules; anything else (empty braces, spaces, punctuation) is
// left untouched.
var referencePattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Render substitutes {name} placeholders in a prompt template with values
// from the dynamic reference map. Substitution is a single pass: values
// containing placeholder-looking text are never re-expanded. Unknown
// references are left literal so a prompt degrades visibly instead of
// dropping words.
func Render(template string, refs map[string]string) string {
	if len(refs) == 0 {
		return template
	}
	return referencePattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := refs[name]; ok {
			return value
		}
		return match
	})
}
