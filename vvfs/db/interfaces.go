package db

// AttributeProvider persists small per-file attribute values, namespaced by
// attribute name and version, next to a handful of global properties.
//
// ReadAttribute returns a nil slice and no error when nothing was written for
// the (name, version, id) triple. Writing a newer version of an attribute
// makes older versions unreachable; providers may reclaim them at any time.
type AttributeProvider interface {
	ReadAttribute(name string, version int64, id uint32) ([]byte, error)
	WriteAttribute(name string, version int64, id uint32, value []byte) error

	LoadGeneration() (int64, error)
	SaveGeneration(generation int64) error
	LoadRulesFingerprint() (string, error)
	SaveRulesFingerprint(fingerprint string) error

	// LoadIdentities and SaveIdentity persist the path to file id mapping the
	// attribute values are keyed by.
	LoadIdentities() (map[string]uint32, error)
	SaveIdentity(path string, id uint32) error

	Close() error
}

var (
	_ AttributeProvider = (*AttributeDB)(nil)
	_ AttributeProvider = (*MemoryAttributes)(nil)
)
