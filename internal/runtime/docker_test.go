package runtime

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitImageName covers splitting at the first colon, defaulting
// the tag when absent.
func TestSplitImageName(t *testing.T) {
	type scenario struct {
		name           string
		imageName      string
		defaultTag     string
		wantRepository string
		wantTag        string
	}

	scenarios := []scenario{
		{"no tag", "bash", "latest", "bash", "latest"},
		{"explicit tag", "bash:5.2", "latest", "bash", "5.2"},
		{"first colon wins", "registry:5000/bash", "latest", "registry", "5000/bash"},
	}

	for _, s := range scenarios {
		t.Run(s.name, func(t *testing.T) {
			repo, tag := splitImageName(s.imageName, s.defaultTag)
			assert.Equal(t, s.wantRepository, repo)
			assert.Equal(t, s.wantTag, tag)
		})
	}
}

// TestNewNegotiatesAPIVersion verifies construction succeeds and does
// not lock the client to a hardcoded version, the same regression the
// teacher's TestNewDockerClientVersionNegotiation guards against.
func TestNewNegotiatesAPIVersion(t *testing.T) {
	log := logrus.New().WithField("test", true)

	rt, err := New(log)
	require.NoError(t, err)
	defer rt.Close()

	assert.NotEmpty(t, rt.Client.ClientVersion())
}
