package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_RejectsInvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	assert.ErrorContains(t, cfg.Validate(), "invalid server port")

	cfg = validConfig()
	cfg.Server.Port = 70000
	assert.ErrorContains(t, cfg.Validate(), "invalid server port")
}

func TestConfig_Validate_RejectsZeroShutdownTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ShutdownTimeout = 0
	assert.ErrorContains(t, cfg.Validate(), "shutdown timeout")
}

func TestConfig_Validate_RequiresVectorStoreFields(t *testing.T) {
	cfg := validConfig()
	cfg.VectorStore.Endpoint = ""
	assert.ErrorContains(t, cfg.Validate(), "vector_store.endpoint")

	cfg = validConfig()
	cfg.VectorStore.CollectionName = ""
	assert.ErrorContains(t, cfg.Validate(), "vector_store.collection_name")
}

func TestConfig_Validate_RequiresInputLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Limits.MaxContentLength = 0
	assert.ErrorContains(t, cfg.Validate(), "limits.max_content")

	cfg = validConfig()
	cfg.Limits.MaxNameLength = 0
	assert.ErrorContains(t, cfg.Validate(), "limits.max_name")

	cfg = validConfig()
	cfg.Limits.MaxTagsCount = 0
	assert.ErrorContains(t, cfg.Validate(), "limits.max_tags")
}

func TestConfig_AdminToken_EmptyMeansFailClosed(t *testing.T) {
	// An empty admin token is a legal configuration: it means channel
	// management is fail-closed, not that validation should reject it.
	cfg := validConfig()
	cfg.Admin.Token = ""
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Admin.Token.IsSet())
}

func TestSecret_RedactsInErrorsAndLogging(t *testing.T) {
	s := Secret("super-secret-value")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "super-secret-value", s.Value())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(b))
}

func TestSecret_EmptyStaysEmpty(t *testing.T) {
	var s Secret
	assert.Equal(t, "", s.String())
	assert.False(t, s.IsSet())
}

func TestDuration_RejectsNegative(t *testing.T) {
	var d Duration
	err := d.UnmarshalText([]byte("-5s"))
	assert.Error(t, err)
}

func TestDuration_RoundTripsText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("30s")))
	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "30s", string(b))
}
