package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/internship-lifecycle-api/internal/scoring"
)

// Certificate is the terminal artifact of a completed internship.
type Certificate struct {
	ID                string          `db:"id" json:"id"`
	InternshipID      string          `db:"internship_id" json:"internship_id"`
	CertificateNumber string          `db:"certificate_number" json:"certificate_number"`
	VerificationCode  string          `db:"verification_code" json:"verification_code"`
	StudentID         string          `db:"student_id" json:"student_id"`
	EnterpriseID      string          `db:"enterprise_id" json:"enterprise_id"`
	UniversityID      string          `db:"university_id" json:"university_id"`
	OverallScore      decimal.Decimal `db:"overall_score" json:"overall_score"`
	Mention           scoring.Mention `db:"mention" json:"mention"`
	DocumentPath      string          `db:"document_path" json:"-"`
	DocumentChecksum  string          `db:"document_checksum" json:"document_checksum"`
	IssuedBy          string          `db:"issued_by" json:"issued_by"`
	IssuedAt          time.Time       `db:"issued_at" json:"issued_at"`
}

// CertificateVerification is the public answer to a verification lookup.
type CertificateVerification struct {
	Valid             bool            `json:"valid"`
	CertificateNumber string          `json:"certificate_number,omitempty"`
	StudentRef        string          `json:"student_ref,omitempty"`
	Mention           scoring.Mention `json:"mention,omitempty"`
	MentionLabel      string          `json:"mention_label,omitempty"`
	IssuedAt          *time.Time      `json:"issued_at,omitempty"`
}
