package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/config"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/db"
	"github.com/ZanzyTHEbar/vvfs-filetypes/vvfs/filetypes"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestRunClassifiesTree(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/main.go":   "package main\n",
		"notes.txt":     "remember the milk\n",
		"blob.bin":      "\x00\x01\x02\x03",
		"deploy":        "#!/bin/sh\necho hi\n",
		"cache.pyc":     "ignored by the default masks",
		"scratch.tmp":   "ignored by the rules file",
		"infra/main.tf": "resource {}",
	})
	conf := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(conf, []byte(`
logLevel: error
filetypes:
  associations:
    - type: TERRAFORM
      patterns: ["*.tf"]
`), 0o644))
	rules := filepath.Join(t.TempDir(), "ignore")
	require.NoError(t, os.WriteFile(rules, []byte("*.tmp\n"), 0o644))

	var out bytes.Buffer
	err := run([]string{"--config", conf, "--ignore-file", rules, "-j", "2", dir}, &out)
	require.NoError(t, err)

	want := []string{
		filepath.Join(dir, "blob.bin") + "\tUNKNOWN",
		filepath.Join(dir, "deploy") + "\tShell Script",
		filepath.Join(dir, "infra/main.tf") + "\tTERRAFORM",
		filepath.Join(dir, "notes.txt") + "\tPLAIN_TEXT",
		filepath.Join(dir, "src/main.go") + "\tGo",
	}
	assert.Equal(t, want, strings.Split(strings.TrimSpace(out.String()), "\n"))
}

func TestClassifyReusesStoredResults(t *testing.T) {
	first := writeTree(t, map[string]string{
		"m":        "plain text\n",
		"z":        "\x00\x01\x02",
		"x.foo":    "named by the config",
		"drop.tmp": "ignored",
	})
	second := writeTree(t, map[string]string{
		"n":         "more text\n",
		"later.tmp": "ignored under the second root too",
	})
	rules := filepath.Join(t.TempDir(), "ignore")
	require.NoError(t, os.WriteFile(rules, []byte("*.tmp\n"), 0o644))
	conf := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(conf, []byte(`
logLevel: error
filetypes:
  ignoreFile: `+rules+`
  associations:
    - type: FOO
      patterns: ["*.foo"]
`), 0o644))
	cfg, err := config.LoadConfig(conf)
	require.NoError(t, err)

	st := db.NewMemoryAttributes()
	pass := func() ([]string, filetypes.Stats) {
		var out bytes.Buffer
		stats, err := classify(context.Background(), zerolog.Nop(), cfg, options{}, []string{first, second}, st, &out)
		require.NoError(t, err)
		return strings.Split(strings.TrimSpace(out.String()), "\n"), stats
	}

	lines, stats := pass()
	assert.Equal(t, []string{
		filepath.Join(first, "m") + "\tPLAIN_TEXT",
		filepath.Join(first, "x.foo") + "\tFOO",
		filepath.Join(first, "z") + "\tUNKNOWN",
		filepath.Join(second, "n") + "\tPLAIN_TEXT",
	}, lines)
	assert.Equal(t, int64(3), stats.AutoDetected)
	gen := stats.Generation

	// A file sorting before the others must not take over their identities.
	require.NoError(t, os.WriteFile(filepath.Join(first, "a"), []byte{0x00, 0xff}, 0o644))

	lines, stats = pass()
	assert.Equal(t, []string{
		filepath.Join(first, "a") + "\tUNKNOWN",
		filepath.Join(first, "m") + "\tPLAIN_TEXT",
		filepath.Join(first, "x.foo") + "\tFOO",
		filepath.Join(first, "z") + "\tUNKNOWN",
		filepath.Join(second, "n") + "\tPLAIN_TEXT",
	}, lines)
	assert.Equal(t, gen, stats.Generation, "replaying the same configuration keeps the generation")
	assert.Equal(t, int64(1), stats.AutoDetected, "only the new file is read")
}

func TestRunFlags(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorIs(t, run([]string{"--help"}, &out), pflag.ErrHelp)
	assert.Error(t, run([]string{"--no-such-flag"}, &out))
	assert.Error(t, run([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, &out))
	assert.Empty(t, out.String())
}
