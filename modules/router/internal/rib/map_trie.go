package rib

// MapTrieKey defines requirements for keys used in the MapTrie data structure.
//
// The type parameter T represents the concrete type implementing this
// interface.
type MapTrieKey[T any] interface {
	// comparable ensures that keys can be used in maps.
	comparable
	// Masked returns a normalized version of the key with only significant
	// bits.
	Masked() T
	// Bits returns the number of significant bits in this key.
	Bits() int
}

// MapTrieQuery defines the interface for objects that can be used for querying
// the MapTrie.
type MapTrieQuery[K MapTrieKey[K]] interface {
	// BitLen returns the maximum number of significant bits in this query.
	BitLen() int
	// Prefix generates a key of the specified bit length from this query.
	Prefix(int) (K, error)
}

// MapTrie is a generic data structure with properties of a prefix trie but
// implemented using maps.
//
// It is an array of maps, where each index corresponds to a prefix length,
// so at most one value exists per (prefix, length) pair.
//
// The size accommodates IPv4 (32 bits) plus an extra slot for the default
// route (/0).
type MapTrie[K MapTrieKey[K], Q MapTrieQuery[K], V any] [33]map[K]V

// NewMapTrie returns a new MapTrie data structure with the specified
// initial capacity.
func NewMapTrie[K MapTrieKey[K], Q MapTrieQuery[K], V any](cap int) MapTrie[K, Q, V] {
	trie := MapTrie[K, Q, V]{}

	for idx := range trie {
		trie[idx] = make(map[K]V, cap)
	}

	return trie
}

// Lookup searches the MapTrie for a value that matches the longest
// possible prefix for the given query.
//
// If no match is found, the function returns the zero value and false.
func (m *MapTrie[K, Q, V]) Lookup(query Q) (K, V, bool) {
	bitLen := min(query.BitLen(), len(m)-1)

	for bits := bitLen; bits >= 0; bits-- {
		prefix, err := query.Prefix(bits)
		if err != nil {
			continue
		}

		if value, ok := m[bits][prefix]; ok {
			return prefix, value, true
		}
	}

	var zeroPrefix K
	var zeroValue V
	return zeroPrefix, zeroValue, false
}

// Get returns the value stored exactly at the given prefix.
func (m *MapTrie[K, Q, V]) Get(prefix K) (V, bool) {
	prefix = prefix.Masked()
	bits := prefix.Bits()
	if bits < 0 || bits >= len(m) {
		var zero V
		return zero, false
	}

	value, ok := m[bits][prefix]
	return value, ok
}

// Matches returns a list of keys that match the given query.
//
// The returned slice is sorted from the longest to the shortest prefix.
// It returns an empty list if there are no matches.
func (m *MapTrie[K, Q, V]) Matches(query Q) []K {
	matches := []K{}

	for bits := min(query.BitLen(), len(m)-1); bits >= 0; bits-- {
		prefix, err := query.Prefix(bits)
		if err != nil {
			continue
		}
		if _, ok := m[bits][prefix]; ok {
			matches = append(matches, prefix)
		}
	}

	return matches
}

// InsertOrUpdate adds a new entry or updates an existing one in the MapTrie.
//
// The function first normalizes the prefix with masking, then either inserts a new
// value using the onEmpty callback or updates an existing value using the onUpdate
// callback.
func (m *MapTrie[K, Q, V]) InsertOrUpdate(prefix K, onEmpty func() V, onUpdate func(V) V) {
	prefix = prefix.Masked()
	bits := prefix.Bits()

	if currValue, ok := m[bits][prefix]; ok {
		m[bits][prefix] = onUpdate(currValue)
		return
	}

	m[bits][prefix] = onEmpty()
}

// Delete removes the entry stored at the given prefix.
//
// Returns false if there was no such entry.
func (m *MapTrie[K, Q, V]) Delete(prefix K) bool {
	prefix = prefix.Masked()
	bits := prefix.Bits()

	if _, ok := m[bits][prefix]; !ok {
		return false
	}
	delete(m[bits], prefix)
	return true
}

// Len returns the total number of prefixes stored in the MapTrie.
func (m *MapTrie[K, Q, V]) Len() int {
	l := 0
	for idx := range m {
		l += len(m[idx])
	}

	return l
}

// Range calls fn for every stored prefix, from the longest prefixes to the
// shortest ones.
//
// The order within a single prefix length is unspecified. Returning false
// from fn stops the iteration.
func (m *MapTrie[K, Q, V]) Range(fn func(K, V) bool) {
	for idx := len(m) - 1; idx >= 0; idx-- {
		for key, value := range m[idx] {
			if !fn(key, value) {
				return
			}
		}
	}
}
