package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrefixesUUID(t *testing.T) {
	id := New("shift")
	require.True(t, strings.HasPrefix(id, "shift-"))
	_, err := uuid.Parse(strings.TrimPrefix(id, "shift-"))
	assert.NoError(t, err)
	assert.NotEqual(t, id, New("shift"))
}
