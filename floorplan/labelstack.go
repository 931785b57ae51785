package floorplan

// LabelStep is both the initial offset and the increment of a LabelStack
const LabelStep = 12

// LabelStack hands out vertical offsets for fallback labels. One counter is
// shared by every AP on the floor.
type LabelStack struct {
	offset int
}

// NewLabelStack returns a stack at its initial offset
func NewLabelStack() *LabelStack {
	return &LabelStack{offset: LabelStep}
}

// Reset returns the stack to its initial offset for a new floor pass
func (s *LabelStack) Reset() {
	s.offset = LabelStep
}

// Offset returns the offset the next fallback device will get
func (s *LabelStack) Offset() int {
	return s.offset
}

// Next returns the current offset and advances the stack
func (s *LabelStack) Next() int {
	off := s.offset
	s.offset += LabelStep
	return off
}
