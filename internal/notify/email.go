// Package notify delivers completion notifications for finished diagnosis
// executions.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/brandlens/brandlens/internal/aggregate"
	"github.com/brandlens/brandlens/internal/diagnosis"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type EmailConfig struct {
	APIKey      string
	FromName    string
	FromAddress string
	To          string
}

type sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// EmailNotifier sends a summary email through SendGrid when an execution
// reaches a completed stage.
type EmailNotifier struct {
	config EmailConfig
	client sender
}

func NewEmailNotifier(config EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		config: config,
		client: sendgrid.NewSendClient(config.APIKey),
	}
}

func (n *EmailNotifier) ExecutionFinished(ctx context.Context, state diagnosis.ExecutionState, result aggregate.Result) error {
	subject := fmt.Sprintf("Diagnosis %s finished: %s", state.ExecutionID, state.Stage)
	body := buildSummary(state, result)

	from := mail.NewEmail(n.config.FromName, n.config.FromAddress)
	to := mail.NewEmail("", n.config.To)
	email := mail.NewSingleEmail(from, subject, to, body, body)

	response, err := n.client.Send(email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	log.Printf("Notification sent to %s for execution %s (status: %d)", n.config.To, state.ExecutionID, response.StatusCode)
	return nil
}

func buildSummary(state diagnosis.ExecutionState, result aggregate.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Execution %s finished in stage %s.\n\n", state.ExecutionID, state.Stage)
	fmt.Fprintf(&b, "Tasks: %d succeeded, %d failed, %d skipped.\n", state.Counts.Success, state.Counts.Failed, state.Counts.Skipped)
	fmt.Fprintf(&b, "Overall health score: %.1f\n\n", result.HealthScore)

	for _, m := range result.Brands {
		fmt.Fprintf(&b, "%s: mention rate %.0f%%, quality %.0f, share of voice %.0f%%\n",
			m.Brand, m.MentionRate*100, m.QualityScore, m.ShareOfVoice*100)
	}

	return b.String()
}
