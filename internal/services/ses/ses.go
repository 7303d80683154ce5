// Package ses provides email notification services via AWS SES
package ses

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	appConfig "blood-alert-engine/internal/config"
	"blood-alert-engine/internal/models"
	"blood-alert-engine/internal/utils"
)

// ErrNoSender is returned when no verified sender address is configured.
var ErrNoSender = errors.New("SES sender email is not configured")

// SendEmailAPI is the subset of the SES client used by Service.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Service handles SES email operations
type Service struct {
	client       SendEmailAPI
	fromEmail    string
	supportEmail string
	logger       *zap.Logger
}

// EmailParams represents parameters for sending an email
type EmailParams struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	ReplyTo  string
}

// SendEmailResult contains the result of sending an email
type SendEmailResult struct {
	MessageID string
	SentAt    time.Time
}

// NewService creates a new SES service from the default AWS credential chain.
func NewService(ctx context.Context, appCfg *appConfig.Config) (*Service, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(appCfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewServiceWithClient(ses.NewFromConfig(cfg), appCfg.SESSenderEmail, appCfg.SupportEmail), nil
}

// NewServiceWithClient creates a service around an existing client.
func NewServiceWithClient(client SendEmailAPI, fromEmail, supportEmail string) *Service {
	if supportEmail == "" {
		supportEmail = fromEmail
	}
	return &Service{
		client:       client,
		fromEmail:    fromEmail,
		supportEmail: supportEmail,
		logger:       utils.GetLogger(),
	}
}

// SendEmail sends a basic email
func (s *Service) SendEmail(ctx context.Context, params EmailParams) (*SendEmailResult, error) {
	if s.fromEmail == "" {
		return nil, ErrNoSender
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{params.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(params.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}

	if params.HTMLBody != "" {
		input.Message.Body.Html = &types.Content{
			Data:    aws.String(params.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}

	if params.TextBody != "" {
		input.Message.Body.Text = &types.Content{
			Data:    aws.String(params.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	if params.ReplyTo != "" {
		input.ReplyToAddresses = []string{params.ReplyTo}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("Failed to send email",
			zap.String("to", params.To),
			zap.String("subject", params.Subject),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	s.logger.Info("Email sent successfully",
		zap.String("to", params.To),
		zap.String("subject", params.Subject),
		zap.String("messageId", messageID),
	)

	return &SendEmailResult{
		MessageID: messageID,
		SentAt:    time.Now(),
	}, nil
}

// DonorAlertParams contains data for the urgent donation email.
type DonorAlertParams struct {
	DonorName string
	Email     string
	BloodType models.BloodType
	Message   string
}

// SendDonorAlert sends the urgent blood request email to one donor.
func (s *Service) SendDonorAlert(ctx context.Context, params DonorAlertParams) (*SendEmailResult, error) {
	htmlBody, err := renderDonorAlertHTML(params)
	if err != nil {
		return nil, fmt.Errorf("failed to render email template: %w", err)
	}

	return s.SendEmail(ctx, EmailParams{
		To:       params.Email,
		Subject:  fmt.Sprintf("URGENT: blood type %s needed", params.BloodType),
		HTMLBody: htmlBody,
		TextBody: renderDonorAlertText(params),
	})
}

// SendDonorAlerts sends the alert to each donor in turn. Donors without an
// email are skipped; a failed send does not stop the batch.
func (s *Service) SendDonorAlerts(ctx context.Context, donors []*models.Donor, message string) *models.NotifyResult {
	result := &models.NotifyResult{
		Requested: len(donors),
		Errors:    []string{},
	}

	for _, donor := range donors {
		if strings.TrimSpace(donor.Email) == "" {
			result.Skipped++
			continue
		}

		_, err := s.SendDonorAlert(ctx, DonorAlertParams{
			DonorName: donor.Name,
			Email:     donor.Email,
			BloodType: donor.BloodType,
			Message:   message,
		})
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("donor %d: %v", donor.ID, err))
			continue
		}
		result.Sent++
	}

	s.logger.Info("Donor alerts sent",
		zap.Int("total", result.Requested),
		zap.Int("sent", result.Sent),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)

	return result
}

// SendSupportMessage forwards a contact form submission to the support inbox.
func (s *Service) SendSupportMessage(ctx context.Context, req models.SupportRequest) error {
	var body strings.Builder
	body.WriteString("New contact request from the website:\n\n")
	fmt.Fprintf(&body, "Name:  %s\n", req.Name)
	fmt.Fprintf(&body, "Email: %s\n", req.Email)
	fmt.Fprintf(&body, "Phone: %s\n\n", req.Phone)
	body.WriteString("Message:\n")
	body.WriteString(req.Message)
	body.WriteString("\n")

	_, err := s.SendEmail(ctx, EmailParams{
		To:       s.supportEmail,
		Subject:  fmt.Sprintf("[Contact] New message from %s", req.Name),
		TextBody: body.String(),
		ReplyTo:  req.Email,
	})
	return err
}

var donorAlertTemplate = template.Must(template.New("donor_alert").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; background-color: #f4f4f4; }
        .container { max-width: 600px; margin: 20px auto; background: #ffffff; border-radius: 8px; overflow: hidden; }
        .header { background-color: #930511; color: #ffffff; padding: 20px; text-align: center; }
        .content { padding: 25px; }
        .alert-box { background-color: #fbe4e6; border-left: 5px solid #930511; padding: 15px; margin: 20px 0; }
        .alert-title { color: #930511; font-weight: bold; margin-top: 0; }
        .footer { background-color: #f9f9f9; padding: 15px; text-align: center; font-size: 12px; color: #888; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Blood Alert</h1>
            <p>Blood type {{.BloodType}} is urgently needed</p>
        </div>
        <div class="content">
            <p>Hello <strong>{{.DonorName}}</strong>,</p>
            <div class="alert-box">
                <p class="alert-title">Blood request</p>
                <p>{{.Message}}</p>
            </div>
            <p>Your donation can save a life. Please visit the hospital as soon as you can.</p>
        </div>
        <div class="footer">
            <p>This is an automated message from Blood Alert.</p>
        </div>
    </div>
</body>
</html>`))

func renderDonorAlertHTML(params DonorAlertParams) (string, error) {
	var buf bytes.Buffer
	if err := donorAlertTemplate.Execute(&buf, params); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderDonorAlertText(params DonorAlertParams) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Hello %s,\n\n", params.DonorName)
	fmt.Fprintf(&buf, "Blood type %s is urgently needed.\n\n", params.BloodType)
	buf.WriteString(params.Message)
	buf.WriteString("\n\nYour donation can save a life. Please visit the hospital as soon as you can.\n")

	return buf.String()
}
