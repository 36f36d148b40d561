package state

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	dollarVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)
	braceVarRe  = regexp.MustCompile(`\{\{([^}]+)\}\}`)
)

// Interpolate substitutes ${name} placeholders, then {{name}} placeholders,
// from the variable store. A present variable is replaced by its string
// form, a variable set to nil by the empty string, and an absent variable
// leaves the placeholder untouched. Names inside {{ }} are trimmed.
func (c *Context) Interpolate(template string) string {
	out := dollarVarRe.ReplaceAllStringFunc(template, func(m string) string {
		return c.substitute(m, dollarVarRe.FindStringSubmatch(m)[1])
	})
	return braceVarRe.ReplaceAllStringFunc(out, func(m string) string {
		return c.substitute(m, strings.TrimSpace(braceVarRe.FindStringSubmatch(m)[1]))
	})
}

func (c *Context) substitute(placeholder, name string) string {
	v, ok := c.Variables[name]
	if !ok {
		return placeholder
	}
	return Stringify(v)
}

// Stringify renders a variable value as text. Nil is empty, floats drop
// trailing zeros, and composite values are rendered as JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case map[string]any, []any, []string:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
