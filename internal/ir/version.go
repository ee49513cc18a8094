package ir

// Version constants for the binary form and the package builder.
const (
	// FormatVersion is the version of the package binary form.
	FormatVersion = "1"

	// BuilderVersion is the version of the CUE package builder.
	BuilderVersion = "0.1.0"
)
