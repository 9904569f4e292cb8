package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRender(t *testing.T) {
	exporter := NewCSVExporter()

	out, err := exporter.Render(Dataset{
		Headers: []string{"student_id", "course", "status"},
		Rows: []map[string]string{
			{"student_id": "CA68001", "course": "Course A", "status": "PAID"},
			{"student_id": "CB68002", "course": "Course B", "status": "PENDING"},
		},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "student_id,course,status", lines[0])
	assert.Equal(t, "CA68001,Course A,PAID", lines[1])
}

func TestCSVRequiresHeaders(t *testing.T) {
	exporter := NewCSVExporter()

	_, err := exporter.Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	exporter := NewPDFExporter()

	out, err := exporter.Render(Dataset{
		Headers: []string{"month", "revenue"},
		Rows:    []map[string]string{{"month": "Jan 25", "revenue": "3000"}},
	}, "Revenue by month")
	require.NoError(t, err)
	assert.True(t, len(out) > 0)
	assert.Equal(t, "%PDF", string(out[:4]))
}
