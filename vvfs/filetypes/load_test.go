package filetypes

import (
	"errors"
	"testing"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/db"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScriptRules(interpreters ...string) func(*StateLoader) error {
	return func(l *StateLoader) error {
		l.RegisterFileType(scriptX, matcher.MustParse("*.xs"))
		for _, i := range interpreters {
			l.AddHashBang(scriptX, i)
		}
		return nil
	}
}

func TestLoadStateAcrossRestarts(t *testing.T) {
	store := db.NewMemoryAttributes()
	opts := Options{Attributes: store, Generations: store, Rules: store}
	script := "#!/usr/bin/xs\necho\n"

	m := newTestManager(t, opts)
	require.NoError(t, m.LoadState(func(*StateLoader) error { return nil }))
	assert.Equal(t, int64(0), m.Generation(), "no rules, nothing stored")
	assert.Same(t, PlainText, m.FileTypeByFile(newTestFile(1, "runner", script)))

	tests := []struct {
		name       string
		load       func(*StateLoader) error
		generation int64
		want       *FileType
	}{
		{"NewRulesInvalidateStoredResults", loadScriptRules("xs"), 1, scriptX},
		{"SameRulesKeepGeneration", loadScriptRules("xs"), 1, scriptX},
		{"ChangedRules", loadScriptRules("xs", "xsh"), 2, scriptX},
		{"RulesRemoved", func(*StateLoader) error { return nil }, 3, PlainText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, opts)
			l := &countingListener{}
			m.AddListener(l)

			require.NoError(t, m.LoadState(tt.load))
			assert.Equal(t, tt.generation, m.Generation())
			assert.Equal(t, int32(0), l.after.Load(), "startup rules are not announced")

			gen, err := store.LoadGeneration()
			require.NoError(t, err)
			assert.Equal(t, tt.generation, gen)
			assert.Same(t, tt.want, m.FileTypeByFile(newTestFile(1, "runner", script)))
		})
	}
}

func TestLoadStateStoredResultsSurviveUnchangedRules(t *testing.T) {
	store := db.NewMemoryAttributes()
	opts := Options{Attributes: store, Generations: store, Rules: store}

	first := newTestManager(t, opts)
	require.NoError(t, first.LoadState(loadScriptRules("xs")))
	assert.Same(t, PlainText, first.FileTypeByFile(newTestFile(2, "notes", "text")))

	second := newTestManager(t, opts)
	require.NoError(t, second.LoadState(loadScriptRules("xs")))
	f := newTestFile(2, "notes", "text")
	assert.Same(t, PlainText, second.FileTypeByFile(f))
	assert.Equal(t, int32(0), f.reads.Load(), "answered from the store")
	assert.Same(t, scriptX, second.FileTypeByFileName("a.xs"))
}

func TestLoadStateWithoutRulesStore(t *testing.T) {
	m := newTestManager(t, Options{})

	require.NoError(t, m.LoadState(func(*StateLoader) error { return nil }))
	assert.Equal(t, int64(0), m.Generation())

	require.NoError(t, m.LoadState(loadScriptRules("xs")))
	assert.Equal(t, int64(1), m.Generation(), "without a fingerprint every applied rule counts as new")
	assert.Same(t, scriptX, m.FileTypeByHashBang("xs"))
}

func TestLoadStateFailure(t *testing.T) {
	store := db.NewMemoryAttributes()
	m := newTestManager(t, Options{Generations: store, Rules: store})
	boom := errors.New("bad rule")

	err := m.LoadState(func(l *StateLoader) error {
		l.Associate(fooType, matcher.MustParse("*.foo"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), m.Generation())
	assert.Same(t, fooType, m.FileTypeByFileName("a.foo"), "rules applied before the failure stay")

	fp, err := store.LoadRulesFingerprint()
	require.NoError(t, err)
	assert.Empty(t, fp)
}

func TestStateLoaderMaterialize(t *testing.T) {
	m := newTestManager(t, Options{})
	require.NoError(t, m.RegisterDescriptor(Descriptor{
		Name:     "LAZY",
		Matchers: []matcher.FileNameMatcher{matcher.MustParse("*.lazy")},
		Factory:  func() (*FileType, error) { return lazyType, nil },
	}))

	require.NoError(t, m.LoadState(func(l *StateLoader) error {
		lt, err := l.Materialize("LAZY")
		require.NoError(t, err)
		assert.True(t, l.IsAssociatedWith(lt, matcher.MustParse("*.lazy")))
		assert.False(t, l.IsAssociatedWith(lt, matcher.MustParse("*.lz")))
		l.Associate(lt, matcher.MustParse("*.lz"))

		_, err = l.Materialize("MISSING")
		assert.ErrorIs(t, err, ErrUnknownFileType)
		return nil
	}))
	assert.Same(t, lazyType, m.FileTypeByExtension("lz"))
}
