package rulepkg

// SetError marks the package invalid with summary. There is no way back:
// a package, once invalid, stays invalid.
func (p *Package) SetError(summary string) {
	if summary == "" {
		summary = defaultErrorSummary
	}
	p.errorSummary = summary
	p.valid = false
}

// IsValid reports whether SetError has never been called.
func (p *Package) IsValid() bool {
	return p.valid
}

// CheckValidity returns InvalidRulePackageError for an invalid package.
func (p *Package) CheckValidity() error {
	if p.valid {
		return nil
	}
	return &InvalidRulePackageError{Package: p.name, Summary: p.errorSummary}
}

// ErrorSummary returns the summary passed to SetError, if any.
func (p *Package) ErrorSummary() (string, bool) {
	return p.errorSummary, p.errorSummary != ""
}
