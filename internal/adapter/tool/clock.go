package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

// ClockTool reports the current time in a given IANA time zone.
type ClockTool struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewClockTool creates the get_current_time tool.
func NewClockTool(logger *slog.Logger) *ClockTool {
	return &ClockTool{logger: logger, now: time.Now}
}

func (t *ClockTool) Name() string { return "get_current_time" }
func (t *ClockTool) Description() string {
	return "Get the current date and time, optionally in a specific time zone"
}

func (t *ClockTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"timezone": {
					"type": "string",
					"description": "IANA time zone name, e.g. Europe/Paris. Defaults to UTC"
				}
			}
		}`),
	}
}

type clockParams struct {
	Timezone string `json:"timezone"`
}

type clockResult struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
	Weekday  string `json:"weekday"`
	Unix     int64  `json:"unix"`
}

func (t *ClockTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_current_time", t.logger, params,
		func(_ context.Context, span trace.Span, p clockParams) (any, error) {
			zone := p.Timezone
			if zone == "" {
				zone = "UTC"
			}
			span.SetAttributes(tracer.StringAttr("tool.timezone", zone))

			loc, err := time.LoadLocation(zone)
			if err != nil {
				return ErrResult("unknown time zone %q", zone), nil
			}
			now := t.now().In(loc)
			return clockResult{
				Time:     now.Format(time.RFC3339),
				Timezone: fmt.Sprintf("%s (%s)", loc.String(), now.Format("MST")),
				Weekday:  now.Weekday().String(),
				Unix:     now.Unix(),
			}, nil
		},
	)
}
