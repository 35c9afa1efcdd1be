package amqp

import (
	"context"

	"ricorrenti/internal/core"
	"ricorrenti/internal/ledger"
)

type reportPublisher interface {
	PublishReport(ctx context.Context, msg *RecurringReportMessage) error
}

var _ ledger.ReportSink = (*Publisher)(nil)

// Publisher announces every report on the report queue.
type Publisher struct {
	client reportPublisher
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) WriteReport(ctx context.Context, report *core.Report) error {
	return p.client.PublishReport(ctx, NewRecurringReportMessage(report))
}
