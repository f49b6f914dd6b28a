package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildIgnoreNilWhenNothingConfigured(t *testing.T) {
	assert.Nil(t, buildIgnore(nil, false))
}

func TestBuildIgnorePatterns(t *testing.T) {
	ignore := buildIgnore([]string{"*.tmp", "Thumbs.db"}, false)

	cases := []struct {
		path string
		want bool
	}{
		{"/data/file.txt", false},
		{"/data/file.tmp", true},
		{"/data/sub/other.tmp", true},
		{"/data/Thumbs.db", true},
		{"/data/.hidden", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ignore(tc.path), tc.path)
	}
}

func TestBuildIgnoreHidden(t *testing.T) {
	ignore := buildIgnore(nil, true)

	assert.True(t, ignore("/data/.git"))
	assert.True(t, ignore("/data/.git/config"))
	assert.False(t, ignore("/data/visible.txt"))
	assert.False(t, ignore("/data"))
}
