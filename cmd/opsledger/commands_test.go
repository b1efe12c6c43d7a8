package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernandezvara/opsledger"
	"github.com/fernandezvara/opsledger/ledger"
)

func TestParseDay(t *testing.T) {
	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

	d, err := parseDay("", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDay("2024-03-14", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDay("14/03/2024", now)
	assert.Error(t, err)
}

func TestParseRange(t *testing.T) {
	rng, err := parseRange("2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01..2024-03-31", rng.String())

	_, err = parseRange("2024-03-31", "2024-03-01")
	assert.True(t, opsledger.IsValidation(err))

	_, err = parseRange("march", "2024-03-01")
	assert.Error(t, err)
}

func TestExportPath(t *testing.T) {
	rng := ledger.DateRange{
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, filepath.Join("exports", "opsledger_2024-03-01_2024-03-31.xlsx"), exportPath("exports", rng))
}

func TestCommands_Flags(t *testing.T) {
	cmd := migrateCmd()
	assert.NotNil(t, cmd.Flags().Lookup("status"))

	export := exportCmd()
	export.SetArgs([]string{})
	var out bytes.Buffer
	export.SetOut(&out)
	export.SetErr(&out)
	err := export.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "from", "to" not set`)
}
