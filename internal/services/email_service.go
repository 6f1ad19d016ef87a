package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/config"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailService delivers verification emails.
type EmailService interface {
	SendVerificationEmail(ctx context.Context, email, fullName, token string, expiresAt time.Time) error
}

// SESAPI is the subset of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// NewEmailService builds the sender selected by EMAIL_PROVIDER.
func NewEmailService(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (EmailService, error) {
	switch cfg.Provider {
	case config.EmailProviderSES:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return NewSESEmailService(ses.NewFromConfig(awsCfg), cfg.FromAddress, cfg.VerificationURL, logger), nil
	default:
		return NewLogEmailService(cfg.VerificationURL, logger), nil
	}
}

// SESEmailService sends emails through AWS SES.
type SESEmailService struct {
	client          SESAPI
	fromAddress     string
	verificationURL string
	logger          *slog.Logger
}

func NewSESEmailService(client SESAPI, fromAddress, verificationURL string, logger *slog.Logger) *SESEmailService {
	return &SESEmailService{
		client:          client,
		fromAddress:     fromAddress,
		verificationURL: verificationURL,
		logger:          logger,
	}
}

func (s *SESEmailService) SendVerificationEmail(ctx context.Context, email, fullName, token string, expiresAt time.Time) error {
	link := verificationLink(s.verificationURL, token)
	expires := expiresAt.UTC().Format("Jan 2, 2006 15:04 MST")

	textBody := fmt.Sprintf(`Hi %s,

Please confirm your email address by opening the link below:

%s

The link expires on %s. If you did not create an account you can ignore this message.
`, fullName, link, expires)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <p>Hi %s,</p>
  <p>Please confirm your email address:</p>
  <p><a href="%s" style="background-color: #0066cc; color: #fff; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Verify email address</a></p>
  <p>Or paste this link into your browser:<br><code>%s</code></p>
  <p>The link expires on %s. If you did not create an account you can ignore this message.</p>
</body>
</html>
`, html.EscapeString(fullName), link, link, expires)

	result, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.fromAddress),
		Destination: &types.Destination{ToAddresses: []string{email}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String("Verify your email address")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	})
	if err != nil {
		s.logger.Error("failed to send verification email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("verification email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogEmailService writes the verification link to the log instead of sending
// mail. Used in development.
type LogEmailService struct {
	verificationURL string
	logger          *slog.Logger
}

func NewLogEmailService(verificationURL string, logger *slog.Logger) *LogEmailService {
	return &LogEmailService{verificationURL: verificationURL, logger: logger}
}

func (s *LogEmailService) SendVerificationEmail(ctx context.Context, email, fullName, token string, expiresAt time.Time) error {
	s.logger.InfoContext(ctx, "verification email (not sent)",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("link", verificationLink(s.verificationURL, token)),
		slog.Time("expires_at", expiresAt))
	return nil
}

func verificationLink(base, token string) string {
	return base + "?token=" + url.QueryEscape(token)
}
