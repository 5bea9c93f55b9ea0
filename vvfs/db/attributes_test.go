package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providers(t *testing.T) map[string]AttributeProvider {
	out := map[string]AttributeProvider{"memory": NewMemoryAttributes()}

	adb, err := NewAttributeDB(filepath.Join(t.TempDir(), "attributes.db"))
	if err != nil {
		t.Logf("libsql unavailable, testing memory provider only: %v", err)
		return out
	}
	t.Cleanup(func() { adb.Close() })
	out["libsql"] = adb
	return out
}

func TestAttributeProviders(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("AbsentIsNil", func(t *testing.T) {
				v, err := p.ReadAttribute("absent", 1, 7)
				require.NoError(t, err)
				assert.Nil(t, v)
			})

			t.Run("RoundTrip", func(t *testing.T) {
				require.NoError(t, p.WriteAttribute("flags", 1, 7, []byte{0}))
				v, err := p.ReadAttribute("flags", 1, 7)
				require.NoError(t, err)
				assert.Equal(t, []byte{0}, v, "a stored zero is distinct from absence")

				require.NoError(t, p.WriteAttribute("flags", 1, 7, []byte{2}))
				v, err = p.ReadAttribute("flags", 1, 7)
				require.NoError(t, err)
				assert.Equal(t, []byte{2}, v)
			})

			t.Run("NewVersionHidesOld", func(t *testing.T) {
				require.NoError(t, p.WriteAttribute("ver", 1, 1, []byte{1}))
				require.NoError(t, p.WriteAttribute("ver", 2, 2, []byte{2}))

				v, err := p.ReadAttribute("ver", 2, 1)
				require.NoError(t, err)
				assert.Nil(t, v)
				v, err = p.ReadAttribute("ver", 1, 1)
				require.NoError(t, err)
				assert.Nil(t, v, "older versions are reclaimed")
			})

			t.Run("Generation", func(t *testing.T) {
				gen, err := p.LoadGeneration()
				require.NoError(t, err)
				assert.Equal(t, int64(0), gen)

				require.NoError(t, p.SaveGeneration(41))
				require.NoError(t, p.SaveGeneration(42))
				gen, err = p.LoadGeneration()
				require.NoError(t, err)
				assert.Equal(t, int64(42), gen)
			})

			t.Run("RulesFingerprint", func(t *testing.T) {
				fp, err := p.LoadRulesFingerprint()
				require.NoError(t, err)
				assert.Empty(t, fp)

				require.NoError(t, p.SaveRulesFingerprint("abc"))
				fp, err = p.LoadRulesFingerprint()
				require.NoError(t, err)
				assert.Equal(t, "abc", fp)
			})

			t.Run("Identities", func(t *testing.T) {
				require.NoError(t, p.SaveIdentity("/w/m", 0))
				require.NoError(t, p.SaveIdentity("/w/z", 1))
				ids, err := p.LoadIdentities()
				require.NoError(t, err)
				assert.Equal(t, map[string]uint32{"/w/m": 0, "/w/z": 1}, ids)
			})

			t.Run("IdentityDropsStaleValues", func(t *testing.T) {
				require.NoError(t, p.WriteAttribute("owned", 1, 30, []byte{5}))
				require.NoError(t, p.SaveIdentity("/w/new", 30))

				v, err := p.ReadAttribute("owned", 1, 30)
				require.NoError(t, err)
				assert.Nil(t, v, "a newly saved identity starts without attributes")
			})
		})
	}
}

func TestAttributeDBReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "attributes.db")
	adb, err := NewAttributeDB(path)
	if err != nil {
		t.Skipf("libsql unavailable: %v", err)
	}
	require.NoError(t, adb.WriteAttribute("flags", 3, 9, []byte{1}))
	require.NoError(t, adb.SaveGeneration(3))
	require.NoError(t, adb.SaveIdentity("/w/a", 9))
	require.NoError(t, adb.WriteAttribute("flags", 3, 9, []byte{1}))
	require.NoError(t, adb.Close())

	adb, err = NewAttributeDB(path)
	require.NoError(t, err)
	defer adb.Close()

	v, err := adb.ReadAttribute("flags", 3, 9)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, v)
	gen, err := adb.LoadGeneration()
	require.NoError(t, err)
	assert.Equal(t, int64(3), gen)
	ids, err := adb.LoadIdentities()
	require.NoError(t, err)
	assert.Equal(t, map[string]uint32{"/w/a": 9}, ids)

	backup, err := adb.Backup(filepath.Join(t.TempDir(), "backups"))
	require.NoError(t, err)
	assert.FileExists(t, backup)
}

func TestConnectToDBRejectsEmptyDSN(t *testing.T) {
	_, err := ConnectToDB("")
	assert.Error(t, err)
}
