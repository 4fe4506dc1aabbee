// Package template renders email subjects and bodies against contact fields.
package template

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{field}} placeholders with values from fields.
// Placeholders with no matching field are left literal, not errors: a typo in
// a template should produce an odd-looking email, not a failed run.
func Render(input string, fields map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]

		value, ok := fields[name]
		if !ok {
			return match
		}

		return value
	})
}
