package service

import (
	"bytes"
	"certify_backend/internal/repository"
	"certify_backend/internal/util"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Certificados"

var exportHeaders = []interface{}{
	"Número", "Código de verificação", "Curso", "Título", "Aluno ID", "Aluno", "E-mail",
	"Nota", "Tentativas", "Horas de estudo", "Emitido em",
}

type ExportService struct {
	CertRepo *repository.CertificateRepository
}

func NewExportService(certRepo *repository.CertificateRepository) *ExportService {
	return &ExportService{CertRepo: certRepo}
}

// ExportIssued 导出所有已发证书为 xlsx
func (s *ExportService) ExportIssued(ctx context.Context) (*bytes.Buffer, error) {
	rows, err := s.CertRepo.ListIssued(ctx)
	if err != nil {
		return nil, fmt.Errorf("list issued certificates: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return nil, err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{
			r.CertificateNumber, r.VerificationCode, r.CourseSlug, r.CourseTitle, r.UserID, r.UserName, r.UserEmail,
			r.QuizScore, r.TotalQuizAttempts, r.TotalStudyHours, r.IssuedAt.Format(util.TimeFormat),
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	return f.WriteToBuffer()
}
