package tlv

// Map holds sibling TLV records keyed by tag, preserving first-insertion
// order for encoding. Writing an existing tag replaces its value in place.
type Map struct {
	tags   []int
	values map[int][]byte
}

func NewMap() *Map {
	return &Map{values: make(map[int][]byte)}
}

func (m *Map) Put(tag int, value []byte) {
	if _, ok := m.values[tag]; !ok {
		m.tags = append(m.tags, tag)
	}
	m.values[tag] = value
}

func (m *Map) Get(tag int) ([]byte, bool) {
	value, ok := m.values[tag]
	return value, ok
}

func (m *Map) Tags() []int {
	tags := make([]int, len(m.tags))
	copy(tags, m.tags)
	return tags
}

func (m *Map) Len() int {
	return len(m.tags)
}

// DecodeMap parses a sequence of sibling TLV records into a Map.
// Duplicate tags keep the last value seen, at the first tag's position.
func DecodeMap(data []byte) (*Map, error) {
	tlvs, err := DecodeList(data)
	if err != nil {
		return nil, err
	}
	m := NewMap()
	for _, t := range tlvs {
		m.Put(t.Tag, t.Value)
	}
	return m, nil
}

// EncodeMap emits the records in insertion order.
func EncodeMap(m *Map) []byte {
	tlvs := make([]Tlv, 0, len(m.tags))
	for _, tag := range m.tags {
		tlvs = append(tlvs, Tlv{Tag: tag, Value: m.values[tag]})
	}
	return EncodeList(tlvs)
}
