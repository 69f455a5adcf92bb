package capture

import "fmt"

// TargetKind discriminates windows from displays.
type TargetKind int

const (
	KindDisplay TargetKind = iota
	KindWindow
)

func (k TargetKind) String() string {
	switch k {
	case KindDisplay:
		return "display"
	case KindWindow:
		return "window"
	default:
		return fmt.Sprintf("TargetKind(%d)", int(k))
	}
}

// Target is a capturable window or display. IDs are assigned by the backend
// and are only unique within a single enumeration.
type Target struct {
	Kind  TargetKind
	ID    uint32
	Title string
}

func (t Target) String() string {
	return fmt.Sprintf("%s %d %q", t.Kind, t.ID, t.Title)
}

// Enumerate lists the targets the backend currently offers. Order is
// backend-defined and may change between calls.
func Enumerate(b Backend) ([]Target, error) {
	targets, err := b.Targets()
	if err != nil {
		return nil, fmt.Errorf("enumerate capture targets: %w", err)
	}
	return targets, nil
}

// Resolve finds the target with the given id in a fresh enumeration.
func Resolve(b Backend, id uint32) (Target, error) {
	targets, err := Enumerate(b)
	if err != nil {
		return Target{}, err
	}
	for _, t := range targets {
		if t.ID == id {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("%w with id: %d", ErrTargetNotFound, id)
}
