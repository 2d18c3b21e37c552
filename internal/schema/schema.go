// Package schema resolves display schemas for event types. A schema is JSON
// text whose enum slots may be placeholders resolved through a lookup
// provider; the resolved form maps coded detail values to display labels.
// This is presentation support only; nothing here feeds back into analysis
// or rule evaluation.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Lookup is one resolved placeholder: ordered values with display names.
type Lookup struct {
	Values []string
	Names  map[string]string
}

// LookupProvider resolves the three placeholder kinds a schema may carry:
// a static enum table, a live query, or a generic choice list.
type LookupProvider interface {
	Enum(name string) (Lookup, error)
	Query(name string) (Lookup, error)
	Choice(name string) (Lookup, error)
}

// placeholderPattern matches {{enum___name}}, {{query___name}} and
// {{choice___name}} slots.
var placeholderPattern = regexp.MustCompile(`"?\{\{(enum|query|choice)___([A-Za-z0-9_]+)\}\}"?`)

// Render substitutes every placeholder in the schema template with the
// provider's resolved value/name pairs, producing valid JSON.
func Render(template string, provider LookupProvider) (string, error) {
	var firstErr error
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		kind, name := groups[1], groups[2]

		var lookup Lookup
		var err error
		switch kind {
		case "enum":
			lookup, err = provider.Enum(name)
		case "query":
			lookup, err = provider.Query(name)
		default:
			lookup, err = provider.Choice(name)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("resolving %s placeholder %q: %w", kind, name, err)
			}
			return "[]"
		}

		pairs := make([]map[string]string, 0, len(lookup.Values))
		for _, v := range lookup.Values {
			name := lookup.Names[v]
			if name == "" {
				name = v
			}
			pairs = append(pairs, map[string]string{"value": v, "name": name})
		}
		encoded, err := json.Marshal(pairs)
		if err != nil {
			return "[]"
		}
		return string(encoded)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return rendered, nil
}

// Resolved is a parsed display schema: per-key titles and per-key value
// label maps.
type Resolved struct {
	Titles     map[string]string
	ValueNames map[string]map[string]string
}

// Title returns the display title for a detail key, or the key itself.
func (r Resolved) Title(key string) string {
	if t, ok := r.Titles[key]; ok && t != "" {
		return t
	}
	return key
}

// Label maps a coded detail value to its display label, or returns the raw
// value rendered as text.
func (r Resolved) Label(key string, value any) string {
	raw := fmt.Sprintf("%v", value)
	if names, ok := r.ValueNames[key]; ok {
		if label, ok := names[raw]; ok {
			return label
		}
	}
	return raw
}

type schemaProperty struct {
	Title string `json:"title"`
	Enum  []struct {
		Value string `json:"value"`
		Name  string `json:"name"`
	} `json:"enum"`
}

type schemaDocument struct {
	Properties map[string]schemaProperty `json:"properties"`
}

// Resolve renders a schema template and parses it into lookup maps. An empty
// template resolves to an empty schema, not an error.
func Resolve(template string, provider LookupProvider) (Resolved, error) {
	resolved := Resolved{
		Titles:     map[string]string{},
		ValueNames: map[string]map[string]string{},
	}
	if strings.TrimSpace(template) == "" {
		return resolved, nil
	}

	rendered, err := Render(template, provider)
	if err != nil {
		return Resolved{}, err
	}

	var doc schemaDocument
	if err := json.Unmarshal([]byte(rendered), &doc); err != nil {
		return Resolved{}, fmt.Errorf("parsing rendered schema: %w", err)
	}

	for key, prop := range doc.Properties {
		resolved.Titles[key] = prop.Title
		if len(prop.Enum) == 0 {
			continue
		}
		names := make(map[string]string, len(prop.Enum))
		for _, e := range prop.Enum {
			names[e.Value] = e.Name
		}
		resolved.ValueNames[key] = names
	}
	return resolved, nil
}

// StaticProvider resolves placeholders from in-memory tables. Query and
// choice lookups fall back to the enum table when no dedicated table is set.
type StaticProvider struct {
	Enums   map[string]Lookup
	Queries map[string]Lookup
	Choices map[string]Lookup
}

func (p StaticProvider) Enum(name string) (Lookup, error) {
	return p.lookup(p.Enums, "enum", name)
}

func (p StaticProvider) Query(name string) (Lookup, error) {
	if p.Queries == nil {
		return p.lookup(p.Enums, "query", name)
	}
	return p.lookup(p.Queries, "query", name)
}

func (p StaticProvider) Choice(name string) (Lookup, error) {
	if p.Choices == nil {
		return p.lookup(p.Enums, "choice", name)
	}
	return p.lookup(p.Choices, "choice", name)
}

func (p StaticProvider) lookup(table map[string]Lookup, kind, name string) (Lookup, error) {
	if l, ok := table[name]; ok {
		return l, nil
	}
	return Lookup{}, fmt.Errorf("unknown %s table %q", kind, name)
}
