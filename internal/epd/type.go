package epd

import (
	"fmt"
	"strings"
)

// Type 端点检测方式
type Type int

const (
	None   Type = -1
	Auto   Type = 0
	Manual Type = 1
	Hybrid Type = 2
)

func (t Type) String() string {
	switch t {
	case Auto:
		return "auto"
	case Manual:
		return "manual"
	case Hybrid:
		return "hybrid"
	case None:
		return "none"
	default:
		return fmt.Sprintf("epd(%d)", int(t))
	}
}

// Valid reports whether t can configure a recognizer.
func (t Type) Valid() bool {
	return t == Auto || t == Manual || t == Hybrid
}

// ParseType accepts the names produced by String.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return Auto, nil
	case "manual":
		return Manual, nil
	case "hybrid":
		return Hybrid, nil
	case "none", "":
		return None, fmt.Errorf("epd type required")
	default:
		return None, fmt.Errorf("unknown epd type %q", s)
	}
}
