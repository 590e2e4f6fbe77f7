package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmittedAt(t *testing.T) {
	assert.Nil(t, submittedAt(time.Time{}))

	ist := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2024, 5, 1, 10, 30, 0, 0, ist)
	got := submittedAt(at)
	require.NotNil(t, got)
	assert.True(t, got.Equal(at))
	assert.Equal(t, time.UTC, got.Location())
}
