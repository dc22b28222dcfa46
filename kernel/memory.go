package kernel

import "github.com/delaneyj/deltasim/bits"

// Memory is a sparse word array. Unwritten words read as zero and writes
// are masked to the word width. Writes are immediate even inside a sync
// body, so a later process on the same edge sees the new word.
type Memory struct {
	name  string
	size  int
	width int
	data  map[int]bits.Value
}

func NewMemory(name string, size, width int) *Memory {
	return &Memory{name: name, size: size, width: width, data: map[int]bits.Value{}}
}

func (m *Memory) Name() string { return m.name }
func (m *Memory) Size() int    { return m.size }
func (m *Memory) Width() int   { return m.width }

func (m *Memory) check(i int) error {
	if i < 0 || i >= m.size {
		return &IndexError{Memory: m.name, Index: i, Size: m.size}
	}
	return nil
}

func (m *Memory) Read(i int) (bits.Value, error) {
	if err := m.check(i); err != nil {
		return bits.Zero(m.width), err
	}
	if v, ok := m.data[i]; ok {
		return v, nil
	}
	return bits.Zero(m.width), nil
}

func (m *Memory) Write(i int, v bits.Value) error {
	if err := m.check(i); err != nil {
		return err
	}
	m.data[i] = v.Resize(m.width)
	return nil
}

func (m *Memory) WriteUint(i int, v uint64) error {
	return m.Write(i, bits.New(m.width, v))
}
