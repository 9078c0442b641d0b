package phantom

import (
	"os"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"

	"github.com/tessellate-db/tessellate/pkg/rangekey"
)

// Exercises DefaultLogDir against a real filesystem: the chosen name lands
// under <base>/<table_id>/ and is usable as a fresh directory.
func TestDefaultLogDirOnRealFilesystem(t *testing.T) {
	base := fs.NewDir(t, "phantom-logs")
	defer base.Remove()

	mk := DefaultLogDir()
	dir, err := mk(base.Path(), rangekey.Table{ID: "t7", Generation: 1}, "m")
	assert.NilError(t, err)
	assert.Assert(t, strings.HasPrefix(dir, base.Path()+"/t7/"))
	assert.Assert(t, strings.Contains(dir, "6f8f57715090da26-"))

	_, statErr := os.Stat(dir)
	assert.Assert(t, os.IsNotExist(statErr))
}
