package governance

import (
	"fmt"
	"regexp"

	"github.com/ormasoftchile/skillrun/pkg/schema"
)

// Redaction is a compiled redact rule of a skill's governance block.
type Redaction struct {
	re      *regexp.Regexp
	replace string
}

func compileRedactions(rules []schema.RedactionRule) ([]Redaction, error) {
	out := make([]Redaction, 0, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact[%d] pattern %q: %w", i, r.Pattern, err)
		}
		out = append(out, Redaction{re: re, replace: r.Replace})
	}
	return out, nil
}

// Apply replaces every match of the rule in s.
func (r Redaction) Apply(s string) string {
	return r.re.ReplaceAllString(s, r.replace)
}
