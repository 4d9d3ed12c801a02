package csvexport

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchforge/internal/domain"
)

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader())
	w.Flush()
	require.NoError(t, w.Error())

	r := csv.NewReader(&buf)
	row, err := r.Read()
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "Result"}, row)
}

func TestWriteResults_BOMHeaderAndRows(t *testing.T) {
	rows := []domain.ResultRow{
		{CustomID: "request-1", Text: "plain"},
		{CustomID: "request-2", Text: "has, comma and \"quotes\"\nand a newline"},
		{CustomID: "request-3", Text: ""},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, rows))

	out := buf.Bytes()
	require.True(t, bytes.HasPrefix(out, BOM))

	records, err := csv.NewReader(bytes.NewReader(out[len(BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"ID", "Result"}, records[0])
	assert.Equal(t, []string{"request-1", "plain"}, records[1])
	assert.Equal(t, []string{"request-2", "has, comma and \"quotes\"\nand a newline"}, records[2])
	assert.Equal(t, []string{"request-3", ""}, records[3])
}

func TestWriteResults_UnicodeRoundTrip(t *testing.T) {
	rows := []domain.ResultRow{{CustomID: "request-1", Text: "摘要：你好"}}

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, rows))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(BOM):])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "摘要：你好", records[1][1])
}

func TestWriteResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, nil))

	assert.Equal(t, string(BOM)+"ID,Result\n", buf.String())
}

func TestBuildFilename(t *testing.T) {
	now := time.Unix(1717000000, 0)

	assert.Equal(t, "batch_results_1717000000.csv", BuildFilename(now))
}
