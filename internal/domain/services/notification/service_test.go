package notification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/pkg/logger"
	"golang.org/x/text/language"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, htmlContent, textContent string) error {
	args := m.Called(ctx, to, subject, htmlContent, textContent)
	return args.Error(0)
}

func newPolicy(reporting entities.ReportingVerbosity) *entities.Policy {
	return &entities.Policy{ID: uuid.New(), UserID: uuid.New(), Reporting: reporting, Email: "trader@example.com"}
}

func proposal() *entities.Proposal {
	return &entities.Proposal{
		ID:            uuid.New(),
		Asset:         "BTC",
		Side:          entities.OrderSideBuy,
		OrderValueEur: decimal.NewFromInt(50),
		Confidence:    75,
		Rationale:     "breakout",
	}
}

func TestNotifyScan_RespectsReporting(t *testing.T) {
	result := entities.ScanRunResult{Outcome: entities.ScanOutcomeGateClosed, NextRunAt: time.Now()}

	t.Run("silent sends nothing", func(t *testing.T) {
		m := new(MockMailer)
		s := NewService(m, language.German, logger.NewNop())
		s.NotifyScan(context.Background(), newPolicy(entities.ReportingSilent), result, []*entities.Proposal{proposal()})
		m.AssertNotCalled(t, "Send")
	})

	t.Run("summary skips runs without proposals", func(t *testing.T) {
		m := new(MockMailer)
		s := NewService(m, language.German, logger.NewNop())
		s.NotifyScan(context.Background(), newPolicy(entities.ReportingSummary), result, nil)
		m.AssertNotCalled(t, "Send")
	})

	t.Run("summary reports proposals", func(t *testing.T) {
		m := new(MockMailer)
		m.On("Send", mock.Anything, "trader@example.com", "1 new trade proposal(s)", mock.Anything, mock.Anything).Return(nil)
		s := NewService(m, language.German, logger.NewNop())
		s.NotifyScan(context.Background(), newPolicy(entities.ReportingSummary), result, []*entities.Proposal{proposal()})
		m.AssertExpectations(t)
	})

	t.Run("verbose reports every run", func(t *testing.T) {
		m := new(MockMailer)
		m.On("Send", mock.Anything, "trader@example.com", "Scan update", mock.Anything,
			mock.MatchedBy(func(text string) bool { return strings.Contains(text, "gate_closed") })).Return(nil)
		s := NewService(m, language.German, logger.NewNop())
		s.NotifyScan(context.Background(), newPolicy(entities.ReportingVerbose), result, nil)
		m.AssertExpectations(t)
	})
}

func TestNotifyExecution(t *testing.T) {
	m := new(MockMailer)
	m.On("Send", mock.Anything, "trader@example.com", "Order placed: BUY BTC", mock.Anything, mock.Anything).Return(nil)
	s := NewService(m, language.German, logger.NewNop())

	exec := &entities.TradeExecution{Status: entities.TradeExecutionSubmitted, Quantity: decimal.RequireFromString("0.001")}
	s.NotifyExecution(context.Background(), newPolicy(entities.ReportingSummary), exec, proposal())
	m.AssertExpectations(t)
}

func TestNotify_NoRecipient(t *testing.T) {
	m := new(MockMailer)
	s := NewService(m, language.German, logger.NewNop())
	p := newPolicy(entities.ReportingVerbose)
	p.Email = ""
	s.NotifyScan(context.Background(), p, entities.ScanRunResult{}, []*entities.Proposal{proposal()})
	m.AssertNotCalled(t, "Send")
}

func TestFormatEUR(t *testing.T) {
	s := NewService(new(MockMailer), language.German, logger.NewNop())
	out := s.FormatEUR(decimal.RequireFromString("1234.5"))
	assert.Contains(t, out, "€")
	assert.Contains(t, out, "234")
}
