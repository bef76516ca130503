package idgen

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDGenerator_GeneratesSortedIDs(t *testing.T) {
	gen := NewULIDGenerator()

	prev := gen.Generate()
	for i := 0; i < 100; i++ {
		next := gen.Generate()
		_, err := ulid.Parse(next)
		require.NoError(t, err)
		assert.Less(t, prev, next)
		prev = next
	}
}
