package epd

import "fmt"

// Selector is the Hybrid policy. Until Resolve is called it keeps an
// automatic detector warm without ever firing; afterwards it behaves as the
// resolved variant. Resolution happens at most once.
type Selector struct {
	auto     *AutoDetector
	resolved Type
	fired    bool
}

func NewSelector(opts Options) (*Selector, error) {
	auto, err := NewAutoDetector(opts)
	if err != nil {
		return nil, err
	}
	return &Selector{auto: auto, resolved: None}, nil
}

// Resolve picks the variant. It fails when t is not Auto or Manual or when a
// variant was already chosen.
func (s *Selector) Resolve(t Type) error {
	if t != Auto && t != Manual {
		return fmt.Errorf("hybrid resolves to auto or manual, got %s", t)
	}
	if s.resolved != None {
		return fmt.Errorf("epd already resolved to %s", s.resolved)
	}
	s.resolved = t
	return nil
}

// Resolved returns the chosen variant, or None while undecided.
func (s *Selector) Resolved() Type {
	return s.resolved
}

func (s *Selector) Feed(frame []byte) bool {
	s.auto.Feed(frame)
	if s.resolved != Auto || s.fired {
		return false
	}
	if s.auto.Ended() {
		s.fired = true
		return true
	}
	return false
}

func (s *Selector) Reset() {
	s.auto.Reset()
	s.resolved = None
	s.fired = false
}

// New returns the detector for a configured type. Hybrid yields a *Selector.
func New(t Type, opts Options) (Detector, error) {
	switch t {
	case Auto:
		return NewAutoDetector(opts)
	case Manual:
		return ManualDetector{}, nil
	case Hybrid:
		return NewSelector(opts)
	default:
		return nil, fmt.Errorf("unsupported epd type %s", t)
	}
}
