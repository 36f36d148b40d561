package governance

import (
	"github.com/ormasoftchile/skillrun/pkg/schema"
)

// Policy bundles the command rules and compiled redaction rules of a skill.
type Policy struct {
	Rules  *Rules
	Redact []Redaction
}

// NewPolicy compiles a skill's governance block. A nil block yields a
// permissive policy.
func NewPolicy(p *schema.GovernancePolicy) (*Policy, error) {
	pol := &Policy{Rules: NewRules(p)}
	if p == nil || len(p.Redact) == 0 {
		return pol, nil
	}
	rules, err := compileRedactions(p.Redact)
	if err != nil {
		return nil, err
	}
	pol.Redact = rules
	return pol, nil
}

// Redacted applies the redaction rules to s in declaration order.
func (p *Policy) Redacted(s string) string {
	if p == nil {
		return s
	}
	for _, r := range p.Redact {
		s = r.Apply(s)
	}
	return s
}
