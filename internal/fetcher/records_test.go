package fetcher

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-dashboard/internal/model"
)

func TestRecords_RoundTrip(t *testing.T) {
	in := []model.EvaluationRecord{
		{
			SubjectID: "11111111-1",
			Category:  model.CategoryRejected,
			CreatedAt: time.Date(2025, 5, 1, 12, 30, 15, 591000000, time.UTC),
			Status:    "REFUSED",
		},
		{
			SubjectID:    "22222222-2",
			Category:     model.CategoryApprovedWithProposal,
			CreatedAt:    time.Date(2025, 5, 2, 9, 0, 0, 0, time.FixedZone("CLT", -4*3600)),
			Analyst:      "Ana, Pérez",
			EvaluationID: "ev-2",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, in))
	assert.True(t, strings.HasPrefix(buf.String(), strings.Join(CanonicalHeader, ",")+"\n"))

	out, err := ReadRecords(context.Background(), &buf)
	require.NoError(t, err)
	require.Len(t, out, 2)

	for i := range in {
		assert.Equal(t, in[i].SubjectID, out[i].SubjectID)
		assert.Equal(t, in[i].Category, out[i].Category)
		assert.True(t, in[i].CreatedAt.Equal(out[i].CreatedAt))
		assert.Equal(t, time.UTC, out[i].CreatedAt.Location())
	}
	assert.Equal(t, "Ana, Pérez", out[1].Analyst)
	assert.Equal(t, "REFUSED", out[0].Status)
}

func TestRecords_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, nil))

	out, err := ReadRecords(context.Background(), &buf)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReadRecords_EmptyDocument(t *testing.T) {
	out, err := ReadRecords(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReadRecords_MissingTimestampColumn(t *testing.T) {
	input := "subject_id,resolucion_riesgo,status\n1,Aprobado,X\n"

	_, err := ReadRecords(context.Background(), strings.NewReader(input))
	require.Error(t, err)

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{ColCreatedAt}, se.Missing)
	assert.Contains(t, se.Error(), "fecha_creacion")
}

func TestReadRecords_SkipsUnparsableTimestamps(t *testing.T) {
	input := "subject_id,resolucion_riesgo,fecha_creacion\n1,Aprobado,garbage\n2,Rechazado,2025-05-01T00:00:00Z\n"

	out, err := ReadRecords(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].SubjectID)
}
