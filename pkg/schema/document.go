package schema

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DocumentName is the file a skill directory is expected to contain.
const DocumentName = "SKILL.md"

var (
	configBlockRe = regexp.MustCompile("(?s)```yaml:skill-config\n(.*?)```")
	promptBlockRe = regexp.MustCompile("(?s)```markdown:([a-zA-Z0-9_-]+)\n(.*?)```")
	frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---`)
)

// LoadDocument loads a skill from a SKILL.md document. The configuration
// comes from the first yaml:skill-config block and each markdown:<name>
// block becomes a named prompt. Without a config block the frontmatter (or
// the parent directory name) supplies the skill name. A directory path is
// resolved to its SKILL.md.
func LoadDocument(path string) (*Skill, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DocumentName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill document: %w", err)
	}

	sk, err := ParseDocument(data, filepath.Base(filepath.Dir(path)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sk.Source = path
	return sk, nil
}

// ParseDocument parses SKILL.md content. fallbackName is used when the
// document declares no name at all.
func ParseDocument(data []byte, fallbackName string) (*Skill, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")

	var sk Skill
	if m := configBlockRe.FindStringSubmatch(content); m != nil {
		dec := yaml.NewDecoder(bytes.NewReader([]byte(m[1])))
		dec.KnownFields(true)
		if err := dec.Decode(&sk); err != nil {
			return nil, fmt.Errorf("decode skill-config block: %w", err)
		}
	} else {
		sk.Name = fallbackName
		if m := frontmatterRe.FindStringSubmatch(content); m != nil {
			var fm struct {
				Name        string `yaml:"name"`
				Description string `yaml:"description"`
			}
			if err := yaml.Unmarshal([]byte(m[1]), &fm); err != nil {
				return nil, fmt.Errorf("decode frontmatter: %w", err)
			}
			if fm.Name != "" {
				sk.Name = fm.Name
			}
			sk.Description = fm.Description
		}
	}
	if sk.Version == "" {
		sk.Version = "1.0"
	}

	if sk.Prompts == nil {
		sk.Prompts = make(map[string]string)
	}
	for name, body := range ExtractPrompts(content) {
		sk.Prompts[name] = body
	}

	sk.ApplyDefaults()
	return &sk, nil
}

// ExtractPrompts returns every markdown:<name> block keyed by name, trimmed.
func ExtractPrompts(content string) map[string]string {
	prompts := make(map[string]string)
	for _, m := range promptBlockRe.FindAllStringSubmatch(content, -1) {
		prompts[m[1]] = strings.TrimSpace(m[2])
	}
	return prompts
}

// Discover loads every <dir>/*/SKILL.md. Documents that fail to load are
// logged and skipped. A missing directory yields no skills.
func Discover(dir string, logger *slog.Logger) []*Skill {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var skills []*Skill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), DocumentName)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		sk, err := LoadDocument(path)
		if err != nil {
			if logger != nil {
				logger.Warn("skip skill", "path", path, "error", err)
			}
			continue
		}
		skills = append(skills, sk)
	}
	return skills
}

// Resolve loads a skill by reference. A path to a .yaml/.yml file is parsed
// as plain skill YAML; any other existing path is treated as a SKILL.md
// document or a directory holding one; a bare name is looked up under dir.
func Resolve(ref, dir string) (*Skill, error) {
	path := ref
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(dir, ref)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadFile(path)
	}
	return LoadDocument(path)
}
