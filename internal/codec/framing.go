package codec

import "fmt"

// Framing selects how a serializer hands a package to its stream.
type Framing uint8

const (
	// Framed writes package fields straight into an engine stream.
	Framed Framing = iota
	// Wrapped writes into a generic object stream; the package wraps its
	// engine-stream encoding as one length-prefixed byte-array object.
	Wrapped
)

func (f Framing) String() string {
	switch f {
	case Framed:
		return "framed"
	case Wrapped:
		return "wrapped"
	default:
		return fmt.Sprintf("framing(%d)", uint8(f))
	}
}

// ParseFraming parses "framed" or "wrapped".
func ParseFraming(s string) (Framing, error) {
	switch s {
	case "framed", "":
		return Framed, nil
	case "wrapped":
		return Wrapped, nil
	default:
		return 0, fmt.Errorf("invalid framing %q: must be framed or wrapped", s)
	}
}
