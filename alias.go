package cellscope

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AliasMap maps an old symbol name or path to its canonical name.
type AliasMap map[string]string

func (m AliasMap) rewrite(name string) string {
	if to, ok := m[name]; ok {
		return to
	}
	return name
}

// Resolved returns a copy of m with every chain followed to its end, so
// {a: b, b: c} becomes {a: c, b: c}. Every member of a cycle, and every
// chain that runs into one, maps to the cycle's smallest name.
func (m AliasMap) Resolved() AliasMap {
	out := make(AliasMap, len(m))
	for from := range m {
		out[from] = m.resolve(from)
	}
	return out
}

func (m AliasMap) resolve(name string) string {
	seen := map[string]int{name: 0}
	path := []string{name}
	cur := name
	for {
		next, ok := m[cur]
		if !ok || next == cur {
			return cur
		}
		if at, cycled := seen[next]; cycled {
			canonical := path[at]
			for _, n := range path[at:] {
				if n < canonical {
					canonical = n
				}
			}
			return canonical
		}
		seen[next] = len(path)
		path = append(path, next)
		cur = next
	}
}

// Apply rewrites every set of every record through the resolved map and
// restores the per-cell invariants afterwards. Applying a map twice gives
// the same records as applying it once.
func (m AliasMap) Apply(records []*CellRecord) {
	if len(m) == 0 {
		return
	}
	m = m.Resolved()
	for _, r := range records {
		r.Definitions = r.Definitions.Map(m.rewrite)
		r.Uses = r.Uses.Map(m.rewrite)
		r.Functions = r.Functions.Map(m.rewrite)
		r.Calls = r.Calls.Map(m.rewrite)
		r.Writes = r.Writes.Map(m.rewrite)
		r.Reads = r.Reads.Map(m.rewrite)
		r.Exports = r.Exports.Map(m.rewrite)
		r.Imports = r.Imports.Map(m.rewrite)

		r.Definitions.AddAll(r.Functions)
		r.Uses = r.Uses.Minus(r.Definitions)
		r.Calls = r.Calls.Intersect(r.Uses)
	}
}

// LoadAliases reads an alias file. See ParseAliases for the format.
func LoadAliases(path string) (AliasMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cellscope: read aliases: %w", err)
	}
	m, err := ParseAliases(data)
	if err != nil {
		return nil, fmt.Errorf("cellscope: aliases %s: %w", path, err)
	}
	return m, nil
}

// ParseAliases decodes YAML holding either a top-level aliases mapping or a
// flat old-name to canonical-name mapping.
func ParseAliases(data []byte) (AliasMap, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if v, ok := raw["aliases"]; ok {
		switch inner := v.(type) {
		case map[string]any:
			raw = inner
		case nil:
			raw = nil
		}
	}
	m := make(AliasMap, len(raw))
	for from, v := range raw {
		to, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("alias %q: target must be a string, got %T", from, v)
		}
		m[from] = to
	}
	return m, nil
}
