package ledger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/models"
)

func TestWriteCSV(t *testing.T) {
	rows := []models.ReportRow{{
		ExternalKey: "S001",
		Name:        "Doe, Jane",
		Date:        time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		MarkedAt:    time.Date(2024, 3, 4, 7, 5, 9, 0, time.UTC),
		Status:      models.StatusPresent,
		Method:      models.MethodToken,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows, testZone))
	assert.Equal(t,
		"External Key,Name,Date,Time,Status,Method\n"+
			"S001,\"Doe, Jane\",2024-03-04,09:05:09,Present,Token\n",
		buf.String())
}
