package assoc

import (
	"testing"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes/matcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kind struct{ name string }

var (
	unknown = &kind{"UNKNOWN"}
	foo     = &kind{"FOO"}
	bar     = &kind{"BAR"}
	archive = &kind{"ARCHIVE"}
	tarball = &kind{"TARBALL"}
)

func TestTable(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"ExtensionRule", testTableExtensionRule},
		{"LookupPriority", testTableLookupPriority},
		{"MostRecentWins", testTableMostRecentWins},
		{"CompoundExtension", testTableCompoundExtension},
		{"RemoveAll", testTableRemoveAll},
		{"CopyIsIndependent", testTableCopyIsIndependent},
		{"HashBang", testTableHashBang},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testTableExtensionRule(t *testing.T) {
	table := New(unknown)
	table.AddAssociation(matcher.MustParse("*.foo"), foo)

	assert.Same(t, foo, table.FindAssociated("a.foo"))
	assert.Same(t, unknown, table.FindAssociated("a.bar"))
	assert.Same(t, unknown, table.FindAssociated("foo"))
	assert.Same(t, foo, table.FindByExtension("FOO"))
	assert.Same(t, unknown, table.FindByExtension(""))

	_, ok := table.Lookup("a.bar")
	assert.False(t, ok)
}

func testTableLookupPriority(t *testing.T) {
	table := New(unknown)
	table.AddAssociation(matcher.MustParse("*.txt"), foo)
	table.AddAssociation(matcher.MustParse("notes*"), bar)
	table.AddAssociation(matcher.NewExactNameAnyCase("README.TXT"), archive)
	table.AddAssociation(matcher.MustParse("readme.txt"), tarball)

	assert.Same(t, tarball, table.FindAssociated("readme.txt"), "exact name first")
	assert.Same(t, archive, table.FindAssociated("Readme.Txt"), "then exact any-case")
	assert.Same(t, bar, table.FindAssociated("notes.txt"), "then wildcards")
	assert.Same(t, foo, table.FindAssociated("a.txt"), "then extension")
}

func testTableMostRecentWins(t *testing.T) {
	table := New(unknown)
	ext := matcher.MustParse("*.foo")
	table.AddAssociation(ext, foo)
	table.AddAssociation(ext, bar)
	assert.Same(t, bar, table.FindAssociated("x.foo"))

	assert.False(t, table.RemoveAssociation(ext, archive))
	assert.True(t, table.RemoveAssociation(ext, bar))
	assert.Same(t, foo, table.FindAssociated("x.foo"), "older association resurfaces")
	assert.True(t, table.RemoveAssociation(ext, foo))
	assert.Same(t, unknown, table.FindAssociated("x.foo"))
	assert.Equal(t, 0, table.Len())

	table.AddAssociation(matcher.MustParse("a*"), foo)
	table.AddAssociation(matcher.MustParse("*b"), bar)
	assert.Same(t, bar, table.FindAssociated("ab"), "newer wildcard wins")
	table.AddAssociation(matcher.MustParse("a*"), foo)
	assert.Same(t, foo, table.FindAssociated("ab"), "re-association promotes")
}

func testTableCompoundExtension(t *testing.T) {
	table := New(unknown)
	table.AddAssociation(matcher.MustParse("*.gz"), archive)
	table.AddAssociation(matcher.MustParse("*.tar.gz"), tarball)

	assert.Same(t, tarball, table.FindAssociated("src.TAR.gz"))
	assert.Same(t, archive, table.FindAssociated("log.gz"))
	assert.Same(t, archive, table.FindAssociated("star.gz"), "suffix must stop at a dot")
	assert.Equal(t, []string{"gz"}, table.AssociatedExtensions(archive))
}

func testTableRemoveAll(t *testing.T) {
	table := New(unknown)
	table.AddAssociation(matcher.MustParse("*.foo"), foo)
	table.AddAssociation(matcher.MustParse("Foofile"), foo)
	table.AddAssociation(matcher.MustParse("*.foo"), bar)
	table.AddHashBang("foo", foo)

	require.True(t, table.HasAssociationsFor(foo))
	table.RemoveAllAssociations(foo)

	assert.False(t, table.HasAssociationsFor(foo))
	assert.Same(t, bar, table.FindAssociated("x.foo"))
	assert.Same(t, unknown, table.FindAssociated("Foofile"))
	assert.Same(t, unknown, table.FindByHashBang("foo"))
}

func testTableCopyIsIndependent(t *testing.T) {
	table := New(unknown)
	table.AddAssociation(matcher.MustParse("*.foo"), foo)
	table.AddAssociation(matcher.MustParse("x?"), foo)

	snapshot := table.Copy()
	table.AddAssociation(matcher.MustParse("*.foo"), bar)
	table.RemoveAssociation(matcher.MustParse("x?"), foo)

	assert.Same(t, foo, snapshot.FindAssociated("a.foo"))
	assert.Same(t, foo, snapshot.FindAssociated("xy"))
	assert.Same(t, bar, table.FindAssociated("a.foo"))
	assert.Same(t, unknown, table.FindAssociated("xy"))
	assert.Len(t, snapshot.Mappings(), 2)
}

func testTableHashBang(t *testing.T) {
	table := New(unknown)
	table.AddHashBang("python3", foo)
	table.AddHashBang("python", foo)

	assert.Same(t, foo, table.FindByHashBang("python3"))
	assert.Same(t, unknown, table.FindByHashBang("perl"))
	assert.Equal(t, []string{"python", "python3"}, table.HashBangs(foo))
	assert.True(t, table.RemoveHashBang("python", foo))
	assert.Same(t, unknown, table.FindByHashBang("python"))
}
