package ses

import (
	"context"
	"fmt"
	"html"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"batchforge/internal/domain"
	"batchforge/internal/port"
)

type sesSender struct {
	client      *sesv2.Client
	fromAddress string
	fromName    string
}

// NewSESSender creates a new SES-backed Notifier.
func NewSESSender(region, fromAddress, fromName string) (port.Notifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	return &sesSender{
		client:      sesv2.NewFromConfig(cfg),
		fromAddress: fromAddress,
		fromName:    fromName,
	}, nil
}

func (s *sesSender) NotifyJobFinished(ctx context.Context, toEmail string, job *domain.Job) error {
	subject := Subject(job)
	textBody := TextBody(job)
	htmlBody := buildJobFinishedHTML(job)
	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Html: &types.Content{Data: &htmlBody},
					Text: &types.Content{Data: &textBody},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}

// Subject is the notification subject line for job.
func Subject(job *domain.Job) string {
	return fmt.Sprintf("Batch job %s %s", job.ID, job.Status)
}

// TextBody is the plain-text notification body for job.
func TextBody(job *domain.Job) string {
	body := fmt.Sprintf("Your batch job %s finished with status %q.\n\nRequests: %d total, %d completed, %d failed.\n",
		job.ID, job.Status, job.Counts.Total, job.Counts.Completed, job.Counts.Failed)
	if job.OutputReady() {
		body += "\nResults are ready to download.\n"
	}
	for _, e := range job.Errors {
		body += fmt.Sprintf("\nError %s: %s", e.Code, e.Message)
	}
	return body + "\n\nbatchforge"
}

func buildJobFinishedHTML(job *domain.Job) string {
	ready := ""
	if job.OutputReady() {
		ready = `<p>Results are ready to download.</p>`
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Batch job %s</h2>
  <p>Your batch job <code>%s</code> finished with status <strong>%s</strong>.</p>
  <p>Requests: %d total, %d completed, %d failed.</p>
  %s
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px;">batchforge</p>
</body>
</html>`, html.EscapeString(string(job.Status)), html.EscapeString(job.ID), html.EscapeString(string(job.Status)),
		job.Counts.Total, job.Counts.Completed, job.Counts.Failed, ready)
}
