package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	movesEventName   = "board.move.request"
	movesEventDomain = "boardsync"
	movesRoute       = "/api/boards/:boardId/moves"
)

type moveRequestMetrics struct {
	logger       *log.Logger
	span         trace.Span
	start        time.Time
	boardID      string
	itemID       string
	moveDuration time.Duration
	errorStage   string
}

func newMoveRequestMetrics(ctx context.Context, logger *log.Logger, boardID string) (*moveRequestMetrics, context.Context) {
	m := &moveRequestMetrics{
		logger:  logger,
		start:   time.Now(),
		boardID: boardID,
	}
	spanCtx, span := otel.Tracer("boardsync/api").Start(ctx, movesEventName)
	m.span = span
	return m, spanCtx
}

func (m *moveRequestMetrics) ObserveMove(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.moveDuration = duration
}

func (m *moveRequestMetrics) SetItem(itemID string) {
	m.itemID = itemID
}

func (m *moveRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *moveRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	attrs := map[string]any{
		"http.route":       movesRoute,
		"http.status_code": status,
		"board.id":         m.boardID,
	}
	if m.itemID != "" {
		attrs["board.item_id"] = m.itemID
	}
	if m.moveDuration > 0 {
		attrs["board.move_ms"] = durationToMillis(m.moveDuration)
	}
	if m.errorStage != "" {
		attrs["error.stage"] = m.errorStage
	}

	fields := log.Fields{
		"event.name":   movesEventName,
		"event.domain": movesEventDomain,
		"total_ms":     durationToMillis(time.Since(m.start)),
		"attributes":   attrs,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("observability.event")

	if m.span != nil {
		spanAttrs := []attribute.KeyValue{
			attribute.String("http.route", movesRoute),
			attribute.Int("http.status_code", status),
			attribute.String("board.id", m.boardID),
		}
		if m.itemID != "" {
			spanAttrs = append(spanAttrs, attribute.String("board.item_id", m.itemID))
		}
		if m.errorStage != "" {
			spanAttrs = append(spanAttrs, attribute.String("error.stage", m.errorStage))
		}
		m.span.SetAttributes(spanAttrs...)
		if err != nil {
			m.span.SetStatus(codes.Error, err.Error())
		}
		m.span.End()
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
