package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll(t *testing.T) {
	all, err := All()
	require.NoError(t, err)
	require.Len(t, all, 4)

	assert.Equal(t, "0001", all[0].ID)
	assert.Equal(t, "create reference tables", all[0].Description)
	assert.Equal(t, "0004", all[3].ID)

	for _, m := range all {
		// bun formats "?" as a placeholder, so the schema must not contain one.
		assert.NotContains(t, m.SQL, "?", m.ID)
		assert.True(t, strings.Contains(m.SQL, "CREATE"), m.ID)
	}
}
