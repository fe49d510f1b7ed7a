package service

import (
	"certify_backend/internal/config"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveCertificateLocal(t *testing.T) {
	dir := t.TempDir()
	s := NewStorageService(&config.Config{Storage: config.StorageConfig{Type: "local", LocalPath: dir}})

	view := &CertificateView{
		CertificateNumber: "CERT-2026-1A2B3C4D",
		VerificationCode:  "1A2B3C4D5E",
		CourseSlug:        "trafego-pago",
		CourseTitle:       "Tráfego Pago",
		StudentName:       "Maria",
		IssuedAt:          time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC),
		QuizScore:         90,
	}
	url, err := s.ArchiveCertificate(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/certificates/CERT-2026-1A2B3C4D.json", url)

	data, err := os.ReadFile(filepath.Join(dir, "certificates", "CERT-2026-1A2B3C4D.json"))
	require.NoError(t, err)

	var got CertificateView
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, *view, got)
}

func TestNotificationServiceFallsBackToLog(t *testing.T) {
	n := NewNotificationService(config.SendGridConfig{})
	_, ok := n.(LogNotifier)
	require.True(t, ok)
	assert.NoError(t, n.NotifyIssued(context.Background(), "a@b.com", &CertificateView{CertificateNumber: "X"}))
}

func TestArchiveOnIssuance(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	f.svc.Storage = NewStorageService(&config.Config{Storage: config.StorageConfig{Type: "local", LocalPath: dir}})
	ctx := context.Background()

	quiz, err := f.svc.RequestQuiz(ctx, f.user.ID, testCourseSlug)
	require.NoError(t, err)
	res, err := f.svc.SubmitQuiz(ctx, f.user.ID, testCourseSlug, SubmitQuizRequest{
		Answers:      f.correctAnswers(t, quiz.AnswersToken),
		AnswersToken: quiz.AnswersToken,
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "certificates", res.Certificate.CertificateNumber+".json"))
	assert.NoError(t, err)
}
