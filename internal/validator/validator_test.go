package validator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateFile_CleanCandleFile(t *testing.T) {
	content := "time,open,high,low,close,volume\n" +
		"01.03.2024 00:00:00,1.08000,1.08200,1.07900,1.08100,12.50\n" +
		"01.03.2024 00:01:00,1.08100,1.08300,1.08000,1.08200,8.25\n"
	path := writeFile(t, content)

	r, err := ValidateFile(path, true, true)
	require.NoError(t, err)
	assert.Equal(t, 2, r.TotalRows)
	assert.Equal(t, 0, r.OutOfOrder)
	assert.Equal(t, 0, r.Duplicates)
	assert.Equal(t, 0, r.InvalidOHLC)
	assert.Equal(t, 0, r.NonPositivePrices)
	assert.Equal(t, 0, r.UnparseableRows)
	assert.True(t, r.MinPrice.Equal(decimal.RequireFromString("1.07900")))
	assert.True(t, r.MaxPrice.Equal(decimal.RequireFromString("1.08300")))
}

func TestValidateFile_DetectsOutOfOrderAndDuplicates(t *testing.T) {
	content := "01.03.2024 00:02:00,1.08000,1.08200,1.07900,1.08100,1\n" +
		"01.03.2024 00:01:00,1.08000,1.08200,1.07900,1.08100,1\n" +
		"01.03.2024 00:01:00,1.08000,1.08200,1.07900,1.08100,1\n"
	path := writeFile(t, content)

	r, err := ValidateFile(path, false, true)
	require.NoError(t, err)
	assert.Equal(t, 3, r.TotalRows)
	assert.Equal(t, 1, r.OutOfOrder)
	assert.Equal(t, 1, r.Duplicates)
}

func TestValidateFile_InvalidOHLCDetected(t *testing.T) {
	content := "01.03.2024 00:00:00,1.08000,1.07000,1.07900,1.08100,1\n"
	path := writeFile(t, content)

	r, err := ValidateFile(path, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, r.InvalidOHLC)
}

func TestValidateFile_NonPositivePriceDetected(t *testing.T) {
	content := "01.03.2024 00:00:00,-1.08000,1.08200,1.07900,1.08100,1\n"
	path := writeFile(t, content)

	r, err := ValidateFile(path, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, r.NonPositivePrices)
}

func TestValidateFile_UnparseableRowSkipped(t *testing.T) {
	content := "01.03.2024 00:00:00,1.08000,1.08200,1.07900,1.08100,1\n" +
		"not,a,valid,candle,row\n"
	path := writeFile(t, content)

	r, err := ValidateFile(path, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, r.TotalRows)
	assert.Equal(t, 1, r.UnparseableRows)
}

func TestValidateFile_TickRowsWithMillis(t *testing.T) {
	content := "01.03.2024 00:00:00.250,1.08451,1.08443,1500000,1200000\n"
	path := writeFile(t, content)

	r, err := ValidateFile(path, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, r.TotalRows)
	assert.Equal(t, 0, r.UnparseableRows)
}

func TestResult_Report_FormatsAllFields(t *testing.T) {
	r := Result{TotalRows: 5, OutOfOrder: 1, Duplicates: 2, InvalidOHLC: 0, NonPositivePrices: 0, UnparseableRows: 1}
	s := r.Report()
	assert.Contains(t, s, "rows=5")
	assert.Contains(t, s, "out_of_order=1")
	assert.Contains(t, s, "duplicates=2")
	assert.Contains(t, s, "unparseable=1")
}

func TestValidateFile_MissingFileErrors(t *testing.T) {
	_, err := ValidateFile(filepath.Join(t.TempDir(), "missing.csv"), false, true)
	assert.Error(t, err)
}
