package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Class is a runtime class identity.
// Supers lists every supertype by fully-qualified name (transitively).
type Class struct {
	Name   string   `json:"name"`
	Supers []string `json:"supers,omitempty"`
}

// SimpleName returns the last dotted segment of the class name.
func (c *Class) SimpleName() string {
	if i := strings.LastIndexByte(c.Name, '.'); i >= 0 {
		return c.Name[i+1:]
	}
	return c.Name
}

// IsA reports whether the class is name or has name as a supertype.
func (c *Class) IsA(name string) bool {
	return c.Name == name || slices.Contains(c.Supers, name)
}

// Rule represents a single production (condition → action).
type Rule struct {
	Name        string `json:"name"`
	Dialect     string `json:"dialect"`
	Salience    int64  `json:"salience"`
	AgendaGroup string `json:"agenda_group,omitempty"`
	NoLoop      bool   `json:"no_loop,omitempty"`
	LoadOrder   int    `json:"load_order"` // 1-based insertion rank, stamped by the package
	Conditions  string `json:"conditions"` // Condition source, opaque to the package
	Consequence string `json:"consequence,omitempty"` // Generated class holding the compiled consequence
	Attributes  Object `json:"attributes,omitempty"`
}

// Function is a named reusable expression callable from rules.
type Function struct {
	Name       string   `json:"name"`
	Dialect    string   `json:"dialect"`
	Params     []string `json:"params,omitempty"`
	ReturnType string   `json:"return_type,omitempty"`
	Body       string   `json:"body"`
	ClassName  string   `json:"class_name,omitempty"` // Generated invoker class
}

// ImportDeclaration is a symbol resolution hint carried to the compiler.
type ImportDeclaration struct {
	Target string `json:"target"` // "org.acme.Tick" or "org.acme.*"
}

// Role is the part a declared type plays in the engine.
type Role uint8

const (
	RoleFact Role = iota
	RoleEvent
)

func (r Role) String() string {
	switch r {
	case RoleFact:
		return "fact"
	case RoleEvent:
		return "event"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole parses "fact" or "event".
func ParseRole(s string) (Role, error) {
	switch s {
	case "fact", "":
		return RoleFact, nil
	case "event":
		return RoleEvent, nil
	default:
		return 0, fmt.Errorf("invalid role %q: must be fact or event", s)
	}
}

// MatchMode selects how a TypeDeclaration matches a class.
type MatchMode uint8

const (
	// MatchExact matches only the declared class name.
	MatchExact MatchMode = iota
	// MatchSubtype matches the declared class and every subtype of it.
	MatchSubtype
	// MatchPattern matches class names against a dotted glob, e.g. "org.acme.**".
	MatchPattern
)

func (m MatchMode) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchSubtype:
		return "subtype"
	case MatchPattern:
		return "pattern"
	default:
		return fmt.Sprintf("match(%d)", uint8(m))
	}
}

// ParseMatchMode parses "exact", "subtype" or "pattern".
func ParseMatchMode(s string) (MatchMode, error) {
	switch s {
	case "exact", "":
		return MatchExact, nil
	case "subtype":
		return MatchSubtype, nil
	case "pattern":
		return MatchPattern, nil
	default:
		return 0, fmt.Errorf("invalid match mode %q: must be exact, subtype or pattern", s)
	}
}

// TypeDeclaration binds a runtime class to a role.
type TypeDeclaration struct {
	TypeName  string    `json:"type_name"`
	Role      Role      `json:"role"`
	Match     MatchMode `json:"match"`
	ClassName string    `json:"class_name,omitempty"` // For MatchExact and MatchSubtype
	Pattern   string    `json:"pattern,omitempty"`    // For MatchPattern
	Metadata  Object    `json:"metadata,omitempty"`
}

// Matches reports whether the declaration applies to class c.
// A nil class never matches. A malformed pattern never matches.
func (t *TypeDeclaration) Matches(c *Class) bool {
	if c == nil {
		return false
	}
	switch t.Match {
	case MatchExact:
		return c.Name == t.ClassName
	case MatchSubtype:
		return c.IsA(t.ClassName)
	case MatchPattern:
		ok, err := doublestar.Match(dottedToSlash(t.Pattern), dottedToSlash(c.Name))
		return err == nil && ok
	default:
		return false
	}
}

// dottedToSlash turns a dotted class name into a slash path so that
// doublestar's segment rules apply to package segments.
func dottedToSlash(s string) string {
	return strings.ReplaceAll(s, ".", "/")
}

// FieldTemplate is one field of a fact template.
type FieldTemplate struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FactTemplate is the schema of a structurally-typed fact.
type FactTemplate struct {
	Name    string          `json:"name"`
	Package string          `json:"package"`
	Fields  []FieldTemplate `json:"fields"`
}

// Field returns the index of the named field, or -1.
func (f *FactTemplate) Field(name string) int {
	for i, field := range f.Fields {
		if field.Name == name {
			return i
		}
	}
	return -1
}

// Process is a rule-flow definition keyed by ID.
type Process struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Version     string       `json:"version,omitempty"`
	Package     string       `json:"package"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// Node is a step of a rule flow.
type Node struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Kind string `json:"kind"` // "start", "end", "ruleset", "split", "join", ...
}

// Connection links two nodes of a rule flow.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}
