package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/rulepack/internal/ir"
)

// Validation error codes (E101-E114). Codes are stable; groups below
// follow what each code checks, not numeric order.
const (
	// Package-level errors
	ErrInvalidPackageName = "E101" // name must be a dotted identifier
	ErrInvalidGlobal      = "E109" // bad global identifier or empty class

	// Rule and function errors
	ErrRuleNoConsequence = "E102" // rule then-clause is required
	ErrUnknownDialect    = "E103" // rule or function uses an undeclared dialect
	ErrFunctionNoBody    = "E113" // function body is required
	ErrInvalidParameter  = "E114" // function parameter is not an identifier

	// Fact template errors
	ErrInvalidFieldType = "E104" // template field type is not a known type
	ErrDuplicateName    = "E105" // duplicate field name within one template

	// Value errors
	ErrFloatTypeForbidden = "E106" // float in a template field type, rule attribute or declaration metadata

	// Type declaration errors
	ErrInvalidRole  = "E107" // role must be fact or event
	ErrInvalidMatch = "E108" // bad match mode, or missing class/pattern

	// Rule flow errors
	ErrInvalidFlowNode = "E110" // missing/duplicate id or unknown kind
	ErrUnknownFlowNode = "E111" // connection references an undeclared node
	ErrRuleFlowCycle   = "E112" // connection graph has a cycle
)

// ValidationError represents a descriptor validation error.
type ValidationError struct {
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
	Code    string `json:"code" yaml:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a decoded descriptor against the package rules.
// Returns all errors found (does not fail-fast).
// dialects lists the dialects rules and functions may use.
func Validate(d *Descriptor, dialects []string) []ValidationError {
	var errs []ValidationError

	// E101: package name
	if !qualifiedNamePattern.MatchString(d.Package) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("invalid package name %q, expected a dotted identifier like \"org.acme.trading\"", d.Package),
			Code:    ErrInvalidPackageName,
		})
	}

	for _, g := range d.Globals {
		if !identifierPattern.MatchString(g.Identifier) || strings.TrimSpace(g.Class) == "" {
			errs = append(errs, ValidationError{
				Field:   "globals." + g.Identifier,
				Message: fmt.Sprintf("global %q needs an identifier name and a class", g.Identifier),
				Code:    ErrInvalidGlobal,
			})
		}
	}

	for _, decl := range d.Declares {
		errs = append(errs, validateDeclare(decl)...)
	}
	for _, tmpl := range d.Templates {
		errs = append(errs, validateTemplate(tmpl)...)
	}

	for _, fn := range d.Functions {
		field := "function." + fn.Name
		if !slices.Contains(dialects, fn.Dialect) {
			errs = append(errs, unknownDialect(field, fn.Dialect, dialects))
		}
		if strings.TrimSpace(fn.Body) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".body",
				Message: fmt.Sprintf("function %q has an empty body", fn.Name),
				Code:    ErrFunctionNoBody,
			})
		}
		for i, param := range fn.Params {
			if !identifierPattern.MatchString(param) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.params[%d]", field, i),
					Message: fmt.Sprintf("invalid parameter name %q", param),
					Code:    ErrInvalidParameter,
				})
			}
		}
	}

	for _, rule := range d.Rules {
		field := "rule." + rule.Name
		if !slices.Contains(dialects, rule.Dialect) {
			errs = append(errs, unknownDialect(field, rule.Dialect, dialects))
		}
		// E102: a rule must do something
		if strings.TrimSpace(rule.Then) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".then",
				Message: fmt.Sprintf("rule %q has an empty consequence", rule.Name),
				Code:    ErrRuleNoConsequence,
			})
		}
	}

	for _, flow := range d.RuleFlows {
		errs = append(errs, validateRuleFlow(flow)...)
	}

	return errs
}

func unknownDialect(field, dialect string, dialects []string) ValidationError {
	return ValidationError{
		Field:   field + ".dialect",
		Message: fmt.Sprintf("unknown dialect %q, must be one of %s", dialect, strings.Join(dialects, ", ")),
		Code:    ErrUnknownDialect,
	}
}

func validateDeclare(decl DeclareSpec) []ValidationError {
	var errs []ValidationError
	field := "declare." + decl.Name

	// E107: role
	if _, err := ir.ParseRole(decl.Role); err != nil {
		errs = append(errs, ValidationError{
			Field:   field + ".role",
			Message: err.Error(),
			Code:    ErrInvalidRole,
		})
	}

	// E108: match mode and its target
	mode, err := ir.ParseMatchMode(decl.Match)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field + ".match",
			Message: err.Error(),
			Code:    ErrInvalidMatch,
		})
	}
	switch mode {
	case ir.MatchPattern:
		if decl.Pattern == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".pattern",
				Message: "pattern match requires a pattern",
				Code:    ErrInvalidMatch,
			})
		}
	default:
		if !qualifiedNamePattern.MatchString(decl.Class) {
			errs = append(errs, ValidationError{
				Field:   field + ".class",
				Message: fmt.Sprintf("%s match requires a fully-qualified class, got %q", mode, decl.Class),
				Code:    ErrInvalidMatch,
			})
		}
	}
	return errs
}

func validateTemplate(tmpl TemplateSpec) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, f := range tmpl.Fields {
		path := fmt.Sprintf("template.%s.fields[%d]", tmpl.Name, i)
		if seen[f.Name] {
			errs = append(errs, ValidationError{
				Field:   path + ".name",
				Message: fmt.Sprintf("duplicate field name: %q", f.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[f.Name] = true
		errs = append(errs, validateFieldType(f.Type, path+".type", f.Name)...)
	}
	return errs
}

// validateFieldType validates a type string, returning errors for invalid types and floats.
func validateFieldType(fieldType, fieldPath, fieldName string) []ValidationError {
	// E106: float forbidden
	if isFloatType(fieldType) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("float type forbidden for field %q, use int instead", fieldName),
			Code:    ErrFloatTypeForbidden,
		}}
	}

	// E104: check for valid type
	if !isValidType(fieldType) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid type %q for field %q", fieldType, fieldName),
			Code:    ErrInvalidFieldType,
		}}
	}
	return nil
}

func validateRuleFlow(flow RuleFlowSpec) []ValidationError {
	var errs []ValidationError
	field := "ruleflow." + flow.ID

	nodes := make(map[string]bool, len(flow.Nodes))
	for i, n := range flow.Nodes {
		path := fmt.Sprintf("%s.nodes[%d]", field, i)
		switch {
		case n.ID == "":
			errs = append(errs, ValidationError{Field: path + ".id", Message: "node id is required", Code: ErrInvalidFlowNode})
		case nodes[n.ID]:
			errs = append(errs, ValidationError{Field: path + ".id", Message: fmt.Sprintf("duplicate node id %q", n.ID), Code: ErrInvalidFlowNode})
		}
		nodes[n.ID] = true
		if !isValidNodeKind(n.Kind) {
			errs = append(errs, ValidationError{
				Field:   path + ".kind",
				Message: fmt.Sprintf("invalid node kind %q, must be one of %s", n.Kind, strings.Join(nodeKinds, ", ")),
				Code:    ErrInvalidFlowNode,
			})
		}
	}

	for i, c := range flow.Connections {
		for _, end := range []string{c.From, c.To} {
			if !nodes[end] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.connections[%d]", field, i),
					Message: fmt.Sprintf("connection references unknown node %q", end),
					Code:    ErrUnknownFlowNode,
				})
			}
		}
	}

	// E112: cycles
	proc := &ir.Process{ID: flow.ID, Nodes: flow.Nodes, Connections: flow.Connections}
	for _, cycle := range AnalyzeCycles(proc) {
		errs = append(errs, ValidationError{
			Field:   field + ".connections",
			Message: cycle.Message(),
			Code:    ErrRuleFlowCycle,
		})
	}

	return errs
}

// isValidType checks if a type string is valid for a template field.
func isValidType(t string) bool {
	validTypes := map[string]bool{
		"string": true,
		"int":    true,
		"bool":   true,
		"array":  true,
		"object": true,
	}
	return validTypes[t]
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	floatTypes := map[string]bool{
		"float":   true,
		"float32": true,
		"float64": true,
		"number":  true,
		"double":  true,
	}
	return floatTypes[t]
}

var nodeKinds = []string{"start", "end", "ruleset", "split", "join", "action"}

func isValidNodeKind(kind string) bool {
	return slices.Contains(nodeKinds, kind)
}

var (
	identifierPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	qualifiedNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)
