package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCSVExporterWritesHeaderOrder(t *testing.T) {
	var out bytes.Buffer
	err := NewCSVExporter().Write(&out, Dataset{
		Headers: []string{"id", "new_status"},
		Rows: []map[string]string{
			{"new_status": "ACCEPTED", "id": "E1"},
			{"id": "E2"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "id,new_status\nE1,ACCEPTED\nE2,\n", out.String())

	require.Error(t, NewCSVExporter().Write(&out, Dataset{}))
}

func TestPDFExporterRenderCertificate(t *testing.T) {
	issued := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	out, err := NewPDFExporter("").RenderCertificate(CertificateContent{
		CertificateNumber: "UNIV1-2025-000001",
		VerificationCode:  "ABCDEFGHJKLMNPQR",
		StudentRef:        "S1",
		EnterpriseRef:     "E1",
		UniversityRef:     "U1",
		StartDate:         issued.AddDate(0, -3, 0),
		EndDate:           issued,
		OverallScore:      "13.75",
		Mention:           "C",
		MentionLabel:      "Good",
		IssuedAt:          issued,
	})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	_, err = NewPDFExporter("").RenderCertificate(CertificateContent{})
	require.Error(t, err)
}

func TestPDFExporterRenderTable(t *testing.T) {
	out, err := NewPDFExporter("").RenderTable(Dataset{Headers: []string{"a"}, Rows: []map[string]string{{"a": "1"}}}, "Events")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}
