// Package prompt provides the read-only registry of named prompt templates.
// Templates are YAML documents under atoms/ baked into the binary with
// go:embed and addressed by dotted keys such as "verification.system_prompt".
package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"litassist/internal/logging"
)

// embeddedAtoms contains all YAML files from atoms/ baked into the binary.
//
//go:embed atoms
var embeddedAtoms embed.FS

// placeholderPattern matches {name} template parameters. Placeholders are
// lowercase identifiers; literal braces around anything else pass through.
var placeholderPattern = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// Registry is an immutable map of dotted template keys to template text.
type Registry struct {
	entries map[string]string
}

var (
	defaultRegistry *Registry
	defaultErr      error
	defaultOnce     sync.Once
)

// Load parses every YAML file under atoms/ into a Registry.
func Load() (*Registry, error) {
	timer := logging.StartTimer(logging.CategoryPrompt, "Load registry")
	defer timer.Stop()

	entries := make(map[string]string)

	err := fs.WalkDir(embeddedAtoms, "atoms", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, readErr := embeddedAtoms.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("failed to read embedded file %s: %w", path, readErr)
		}

		var doc map[string]interface{}
		if parseErr := yaml.Unmarshal(data, &doc); parseErr != nil {
			return fmt.Errorf("failed to parse %s: %w", path, parseErr)
		}

		flatten("", doc, entries)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk embedded atoms: %w", err)
	}

	logging.Prompt("Loaded %d prompt templates", len(entries))
	return &Registry{entries: entries}, nil
}

// Default returns the process-wide registry built from the embedded corpus.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = Load()
	})
	return defaultRegistry, defaultErr
}

// Must returns the default registry and panics if the embedded corpus is
// unloadable. Use for initialization where failure is unrecoverable.
func Must() *Registry {
	r, err := Default()
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt registry: %v", err))
	}
	return r
}

// MustGet fetches one template from the default registry, panicking on a
// missing key. Intended for package-level directive constants.
func MustGet(key string) string {
	s, err := Must().Get(key)
	if err != nil {
		panic(err.Error())
	}
	return s
}

// flatten walks nested YAML maps into dotted keys. Only scalar strings
// become entries; non-string leaves are rendered with %v.
func flatten(prefix string, node map[string]interface{}, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case string:
			out[key] = val
		case nil:
			// skip empty leaves
		default:
			out[key] = fmt.Sprintf("%v", val)
		}
	}
}

// Get returns the template for a dotted key. A missing key errors naming
// the key and the nearest available section so typos are quick to spot.
func (r *Registry) Get(key string) (string, error) {
	if tmpl, ok := r.entries[key]; ok {
		logging.PromptDebug("Registry hit: %s", key)
		return tmpl, nil
	}

	section := key
	if idx := strings.LastIndex(key, "."); idx > 0 {
		section = key[:idx]
	}
	available := r.keysUnder(section)
	if len(available) == 0 {
		return "", fmt.Errorf("prompt template %q not found", key)
	}
	return "", fmt.Errorf("prompt template %q not found (available under %s: %s)",
		key, section, strings.Join(available, ", "))
}

// Has reports whether a key exists.
func (r *Registry) Has(key string) bool {
	_, ok := r.entries[key]
	return ok
}

// Keys returns every dotted key in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) keysUnder(section string) []string {
	var keys []string
	for k := range r.entries {
		if strings.HasPrefix(k, section+".") || k == section {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Format fetches a template and substitutes {name} placeholders from vars.
// Unbound placeholders are an error; unused vars are ignored.
func (r *Registry) Format(key string, vars map[string]string) (string, error) {
	tmpl, err := r.Get(key)
	if err != nil {
		return "", err
	}

	var missing []string
	result := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("prompt template %q has unbound placeholders: %s",
			key, strings.Join(missing, ", "))
	}
	return result, nil
}

// SystemPrompt composes the system prompt for a command: the Australian-law
// base directive, the citation and accuracy standards, then the command's
// own system entry when one exists.
func (r *Registry) SystemPrompt(command string) string {
	parts := []string{}
	for _, key := range []string{"base.australian_law", "base.citation_standards", "base.accuracy_standards"} {
		if text, err := r.Get(key); err == nil {
			parts = append(parts, text)
		}
	}
	if command != "" {
		if text, err := r.Get("commands." + command + ".system"); err == nil {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
