package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ricorrenti/internal/core"
)

// AnalysisRequestMessage asks the worker to run an analysis now.
type AnalysisRequestMessage struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewAnalysisRequestMessage(reason string) *AnalysisRequestMessage {
	return &AnalysisRequestMessage{Reason: reason, RequestedAt: time.Now().UTC()}
}

func (m *AnalysisRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AnalysisRequestMessageFromJSON(data []byte) (*AnalysisRequestMessage, error) {
	var msg AnalysisRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.RequestedAt.IsZero() {
		return nil, errors.New("missing requested_at")
	}
	return &msg, nil
}

// RecurringGroupPayload is the wire form of core.RecurringGroup. Dates are
// YYYY-MM-DD; cadence fields are omitted when the group has no cadence.
type RecurringGroupPayload struct {
	VendorKey     string          `json:"vendor_group"`
	Amount        decimal.Decimal `json:"amount_grouped"`
	Count         int             `json:"count"`
	FirstDate     string          `json:"first_date"`
	LastDate      string          `json:"last_date"`
	MedianGapDays *int            `json:"median_freq_days,omitempty"`
	Pattern       string          `json:"pattern,omitempty"`
}

// RecurringReportMessage announces the outcome of an analysis run. Enriched
// transactions stay in storage; only the summary table travels.
type RecurringReportMessage struct {
	RunID       string                  `json:"run_id"`
	GeneratedAt time.Time               `json:"generated_at"`
	MatchMode   core.MatchMode          `json:"match_mode"`
	Groups      []RecurringGroupPayload `json:"groups"`
}

func NewRecurringReportMessage(report *core.Report) *RecurringReportMessage {
	groups := make([]RecurringGroupPayload, 0, len(report.Groups))
	for _, g := range report.Groups {
		p := RecurringGroupPayload{
			VendorKey: g.VendorKey,
			Amount:    g.Amount,
			Count:     g.Count,
			FirstDate: g.FirstDate.String(),
			LastDate:  g.LastDate.String(),
		}
		if g.Cadence != nil {
			days := g.Cadence.MedianGapDays
			p.MedianGapDays = &days
			p.Pattern = string(g.Cadence.Pattern)
		}
		groups = append(groups, p)
	}
	return &RecurringReportMessage{
		RunID:       report.RunID,
		GeneratedAt: report.GeneratedAt.UTC(),
		MatchMode:   report.MatchMode,
		Groups:      groups,
	}
}

func (m *RecurringReportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecurringReportMessageFromJSON(data []byte) (*RecurringReportMessage, error) {
	var msg RecurringReportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.RunID == "" {
		return nil, errors.New("missing run_id")
	}
	return &msg, nil
}
