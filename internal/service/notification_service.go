package service

import (
	"certify_backend/internal/config"
	"certify_backend/pkg/logger"
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// IssuanceNotifier 证书颁发通知
type IssuanceNotifier interface {
	NotifyIssued(ctx context.Context, email string, cert *CertificateView) error
}

// LogNotifier 未配置邮件服务时只记录日志
type LogNotifier struct{}

func (LogNotifier) NotifyIssued(ctx context.Context, email string, cert *CertificateView) error {
	logger.Log.Info("certificate issued",
		zap.String("certificateNumber", cert.CertificateNumber),
		zap.String("course", cert.CourseSlug),
	)
	return nil
}

// SendGridNotifier 通过 SendGrid 发送颁发邮件
type SendGridNotifier struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewNotificationService(cfg config.SendGridConfig) IssuanceNotifier {
	if cfg.APIKey == "" {
		return LogNotifier{}
	}
	return &SendGridNotifier{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
	}
}

func (n *SendGridNotifier) NotifyIssued(ctx context.Context, email string, cert *CertificateView) error {
	if email == "" {
		return nil
	}

	subject := fmt.Sprintf("Seu certificado do curso %s", cert.CourseTitle)
	plain := fmt.Sprintf("Parabéns, %s! Você concluiu o curso %s.\nCertificado: %s\nVerificação: %s",
		cert.StudentName, cert.CourseTitle, cert.CertificateNumber, cert.VerificationURL)
	htmlBody := fmt.Sprintf("<p>Parabéns, <strong>%s</strong>! Você concluiu o curso <strong>%s</strong>.</p>"+
		"<p>Certificado nº %s</p><p><a href=\"%s\">Verificar certificado</a></p>",
		html.EscapeString(cert.StudentName), html.EscapeString(cert.CourseTitle),
		html.EscapeString(cert.CertificateNumber), html.EscapeString(cert.VerificationURL))

	message := mail.NewSingleEmail(n.from, subject, mail.NewEmail(cert.StudentName, email), plain, htmlBody)
	resp, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
