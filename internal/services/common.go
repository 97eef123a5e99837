package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/joshua-takyi/homex/internal/events"
	"github.com/joshua-takyi/homex/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/joshua-takyi/homex/internal/services")

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
// Calendar dates are returned as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(models.DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// AverageRating is the mean of ratings rounded to one decimal place, or 0
// when nothing was rated.
func AverageRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return roundTo(float64(sum)/float64(len(ratings)), 1)
}

// validationFrom merges validator failures into v. Non-validation errors are
// returned as-is.
func validationFrom(v *models.ValidationError, err error) error {
	if err == nil {
		return nil
	}
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	v.Fields = append(v.Fields, verr.Fields...)
	return nil
}

// publish never fails the caller; the state change is already stored.
func publish(ctx context.Context, pub events.Publisher, logger *slog.Logger, key, subject, actor string, data any) {
	if pub == nil {
		return
	}
	if err := pub.PublishJSON(ctx, key, events.NewEnvelope(key, subject, actor, data)); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "key", key, "subject", subject, "error", err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
