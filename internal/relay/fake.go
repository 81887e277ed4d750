package relay

// FakeLine records written values for test assertions.
type FakeLine struct {
	Chip   string
	Offset int
	Values []int
	Closed bool

	SetError error
}

func (f *FakeLine) SetValue(v int) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Values = append(f.Values, v)
	return nil
}

func (f *FakeLine) Close() error {
	f.Closed = true
	return nil
}

// FakeOpener hands out FakeLines and keeps them by offset.
type FakeOpener struct {
	Lines map[int]*FakeLine
}

func NewFakeOpener() *FakeOpener {
	return &FakeOpener{Lines: make(map[int]*FakeLine)}
}

func (f *FakeOpener) Open(chip string, offset int, initial int) (Line, error) {
	l := &FakeLine{Chip: chip, Offset: offset, Values: []int{initial}}
	f.Lines[offset] = l
	return l, nil
}
