package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	v, c := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = v, c })

	Version, GitCommit = "v0.3.0", "1a2b3c4d5e6f"
	assert.Equal(t, "v0.3.0 (1a2b3c4)", Short())

	GitCommit = "unknown"
	assert.Equal(t, "v0.3.0 (unknown)", Short())
}
