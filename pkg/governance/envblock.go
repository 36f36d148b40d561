package governance

import (
	"strings"
)

// FilterEnvVars returns environment variables with denied patterns removed,
// along with the names that were blocked.
func (r *Rules) FilterEnvVars(env []string) ([]string, []string) {
	if r == nil || len(r.DenyEnvVars) == 0 {
		return env, nil
	}
	var filtered []string
	var blocked []string
	for _, e := range env {
		name, _, _ := strings.Cut(e, "=")
		if err := r.CheckEnvVar(name); err != nil {
			blocked = append(blocked, name)
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, blocked
}
