// Package notification tells users what the pipeline did, honouring each policy's reporting level.
package notification

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/pkg/logger"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Mailer sends one email
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlContent, textContent string) error
}

// Service renders and sends notifications
type Service struct {
	mailer  Mailer
	printer *message.Printer
	logger  *logger.Logger
}

// NewService creates a notification service. Amounts are rendered for the given locale.
func NewService(mailer Mailer, locale language.Tag, log *logger.Logger) *Service {
	return &Service{
		mailer:  mailer,
		printer: message.NewPrinter(locale),
		logger:  log,
	}
}

// FormatEUR renders an amount the way the user's locale writes euros
func (s *Service) FormatEUR(v decimal.Decimal) string {
	f, _ := v.Round(2).Float64()
	return s.printer.Sprint(currency.Symbol(currency.EUR.Amount(f)))
}

// NotifyScan reports a finished scan run. Summary users hear about runs that
// produced proposals; verbose users hear about every run.
func (s *Service) NotifyScan(ctx context.Context, policy *entities.Policy, result entities.ScanRunResult, proposals []*entities.Proposal) {
	if policy == nil {
		return
	}
	switch policy.Reporting {
	case entities.ReportingSilent:
		return
	case entities.ReportingSummary:
		if len(proposals) == 0 {
			return
		}
	}

	var b strings.Builder
	if len(proposals) == 0 {
		fmt.Fprintf(&b, "Scan finished: %s. Next run at %s.\n", result.Outcome, result.NextRunAt.Format("15:04 MST"))
	} else {
		fmt.Fprintf(&b, "%d new trade proposal(s) are waiting for your decision.\n", len(proposals))
	}
	if policy.Reporting == entities.ReportingVerbose {
		for _, p := range proposals {
			fmt.Fprintf(&b, "- %s %s for %s (confidence %d): %s\n",
				strings.ToUpper(string(p.Side)), p.Asset, s.FormatEUR(p.OrderValueEur), p.Confidence, p.Rationale)
		}
	}

	subject := "Scan update"
	if len(proposals) > 0 {
		subject = fmt.Sprintf("%d new trade proposal(s)", len(proposals))
	}
	s.send(ctx, policy, subject, b.String())
}

// NotifyExecution reports the outcome of an order
func (s *Service) NotifyExecution(ctx context.Context, policy *entities.Policy, exec *entities.TradeExecution, proposal *entities.Proposal) {
	if policy == nil || policy.Reporting == entities.ReportingSilent || exec == nil || proposal == nil {
		return
	}

	var subject, body string
	switch exec.Status {
	case entities.TradeExecutionSubmitted:
		subject = fmt.Sprintf("Order placed: %s %s", strings.ToUpper(string(proposal.Side)), proposal.Asset)
		body = fmt.Sprintf("Your %s order for %s %s (%s) was placed.\n",
			proposal.Side, exec.Quantity.String(), proposal.Asset, s.FormatEUR(proposal.OrderValueEur))
		if !exec.FeeEur.IsZero() {
			body += fmt.Sprintf("Fee: %s\n", s.FormatEUR(exec.FeeEur))
		}
	case entities.TradeExecutionFailed:
		subject = fmt.Sprintf("Order failed: %s %s", strings.ToUpper(string(proposal.Side)), proposal.Asset)
		reason := "unknown"
		if exec.LastError != nil {
			reason = *exec.LastError
		}
		body = fmt.Sprintf("Your %s order for %s could not be placed: %s\n", proposal.Side, proposal.Asset, reason)
	default:
		return
	}
	s.send(ctx, policy, subject, body)
}

func (s *Service) send(ctx context.Context, policy *entities.Policy, subject, text string) {
	if policy.Email == "" {
		s.logger.Debug("Notification without recipient", "user_id", policy.UserID, "subject", subject)
		return
	}
	htmlBody := "<p>" + strings.ReplaceAll(html.EscapeString(strings.TrimSpace(text)), "\n", "<br>") + "</p>"
	if err := s.mailer.Send(ctx, policy.Email, subject, htmlBody, text); err != nil {
		s.logger.Warn("Failed to send notification", "user_id", policy.UserID, "subject", subject, "error", err)
	}
}
