package optimize

// orderedMap is a map[int64]int64 that remembers insertion order. The
// fixed-point rewriter must iterate per-offset accumulators in
// insertion order rather than hash order, or the fixed point can
// oscillate between two equally "sorted" rewrites of the same
// straight-line run. A plain Go map has no iteration-order
// guarantee at all, so this type exists purely to make that guarantee
// explicit and testable rather than relying on accidental map
// iteration behavior.
type orderedMap struct {
	keys   []int64
	values map[int64]int64
}

func newOrderedMap() *orderedMap {
	return &orderedMap{values: make(map[int64]int64)}
}

// Get returns the value at k and whether it is present.
func (m *orderedMap) Get(k int64) (int64, bool) {
	v, ok := m.values[k]
	return v, ok
}

// Has reports whether k has been Set (and not Delete'd) on this map.
func (m *orderedMap) Has(k int64) bool {
	_, ok := m.values[k]
	return ok
}

// Set assigns m[k] = v, appending k to the insertion order if it is new.
func (m *orderedMap) Set(k, v int64) {
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

// Add adds v to the current value at k (0 if absent), appending k to
// the insertion order if it is new.
func (m *orderedMap) Add(k, v int64) {
	cur, _ := m.values[k]
	m.Set(k, cur+v)
}

// Delete removes k, if present, including from the insertion order.
func (m *orderedMap) Delete(k int64) {
	if _, ok := m.values[k]; !ok {
		return
	}
	delete(m.values, k)
	for i, kk := range m.keys {
		if kk == k {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *orderedMap) Keys() []int64 {
	return m.keys
}

// Len returns the number of entries currently in the map.
func (m *orderedMap) Len() int {
	return len(m.keys)
}

// Clear empties the map in place.
func (m *orderedMap) Clear() {
	m.keys = m.keys[:0]
	for k := range m.values {
		delete(m.values, k)
	}
}

// ops is an insertion-ordered map from cell offset to the opcode (ADD
// or SET) currently pending for that offset within a straight-line
// run. It is used alongside an orderedMap of values by the
// shift-sinking pass (R8).
type ops struct {
	keys []int64
	kind map[int64]opKind
}

type opKind int

const (
	opAdd opKind = iota + 1
	opSet
)

func newOps() *ops {
	return &ops{kind: make(map[int64]opKind)}
}

func (o *ops) Get(k int64) (opKind, bool) {
	v, ok := o.kind[k]
	return v, ok
}

func (o *ops) Set(k int64, v opKind) {
	if _, ok := o.kind[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.kind[k] = v
}

func (o *ops) Delete(k int64) {
	if _, ok := o.kind[k]; !ok {
		return
	}
	delete(o.kind, k)
	for i, kk := range o.keys {
		if kk == k {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

func (o *ops) Keys() []int64 {
	return o.keys
}

func (o *ops) Clear() {
	o.keys = o.keys[:0]
	for k := range o.kind {
		delete(o.kind, k)
	}
}
