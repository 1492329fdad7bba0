package gate

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	sserr "github.com/StricklySoft/tokengate/pkg/errors"
)

// Decision outcomes, recorded as the "outcome" attribute.
const (
	outcomeAllowed     = "allowed"
	outcomeMissing     = "missing"
	outcomeExpired     = "expired"
	outcomeInvalid     = "invalid"
	outcomeDenied      = "denied"
	outcomeUnavailable = "unavailable"
)

type decisionMetrics struct {
	decisions metric.Int64Counter
}

func newDecisionMetrics(meter metric.Meter) (*decisionMetrics, error) {
	decisions, err := meter.Int64Counter(
		"tokengate.gate.decisions",
		metric.WithDescription("Access gate decisions by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	return &decisionMetrics{decisions: decisions}, nil
}

func (m *decisionMetrics) record(ctx context.Context, outcome string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func outcomeOf(err error) string {
	switch sserr.GetCode(err) {
	case "":
		return outcomeAllowed
	case sserr.CodeAuthenticationMissing:
		return outcomeMissing
	case sserr.CodeAuthenticationExpired:
		return outcomeExpired
	case sserr.CodeAuthenticationInvalid:
		return outcomeInvalid
	case sserr.CodeAuthorizationDenied:
		return outcomeDenied
	default:
		return outcomeUnavailable
	}
}
