package db

import (
	"sync"
)

type attributeKey struct {
	name    string
	version int64
	id      uint32
}

// MemoryAttributes is an in-memory AttributeProvider used when no database is
// configured and in tests.
type MemoryAttributes struct {
	mu         sync.Mutex
	values     map[attributeKey][]byte
	newest     map[string]int64
	generation int64
	identities map[string]uint32
	rules      string

	// Fail, when set, is returned by every call.
	Fail error
}

func NewMemoryAttributes() *MemoryAttributes {
	return &MemoryAttributes{
		values:     make(map[attributeKey][]byte),
		newest:     make(map[string]int64),
		identities: make(map[string]uint32),
	}
}

func (m *MemoryAttributes) ReadAttribute(name string, version int64, id uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	v, ok := m.values[attributeKey{name, version, id}]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (m *MemoryAttributes) WriteAttribute(name string, version int64, id uint32, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if prev, ok := m.newest[name]; !ok || version > prev {
		m.newest[name] = version
		for k := range m.values {
			if k.name == name && k.version < version {
				delete(m.values, k)
			}
		}
	}
	m.values[attributeKey{name, version, id}] = append([]byte{}, value...)
	return nil
}

// Len returns the number of stored values.
func (m *MemoryAttributes) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

func (m *MemoryAttributes) LoadGeneration() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return 0, m.Fail
	}
	return m.generation, nil
}

func (m *MemoryAttributes) SaveGeneration(generation int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.generation = generation
	return nil
}

func (m *MemoryAttributes) LoadRulesFingerprint() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return "", m.Fail
	}
	return m.rules, nil
}

func (m *MemoryAttributes) SaveRulesFingerprint(fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.rules = fingerprint
	return nil
}

func (m *MemoryAttributes) LoadIdentities() (map[string]uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	out := make(map[string]uint32, len(m.identities))
	for p, id := range m.identities {
		out[p] = id
	}
	return out, nil
}

func (m *MemoryAttributes) SaveIdentity(path string, id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	for p, owned := range m.identities {
		if owned == id {
			delete(m.identities, p)
		}
	}
	for k := range m.values {
		if k.id == id {
			delete(m.values, k)
		}
	}
	m.identities[path] = id
	return nil
}

func (m *MemoryAttributes) Close() error { return nil }
