package mnblog

import (
	"testing"

	"github.com/berkgaut/mnb/internal/config"
	"github.com/stretchr/testify/assert"
)

// TestNewLoggerCarriesRunFields is a function.
func TestNewLoggerCarriesRunFields(t *testing.T) {
	cfg := &config.AppConfig{
		Version:     "1.2.3",
		Commit:      "abc",
		WorkingRoot: "/work",
	}

	entry := NewLogger(cfg)

	assert.Equal(t, "1.2.3", entry.Data["version"])
	assert.Equal(t, "/work", entry.Data["workingRoot"])
}
