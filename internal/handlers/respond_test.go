package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/joshua-takyi/homex/internal/models"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewValidationError("email", "is required"), http.StatusBadRequest},
		{fmt.Errorf("%w: booking BK1", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: 2024-01-02|9:00 am", models.ErrSlotConflict), http.StatusConflict},
		{models.ErrInvalidTransition, http.StatusConflict},
		{models.ErrTerminalState, http.StatusConflict},
		{models.ErrPreconditionFailed, http.StatusPreconditionFailed},
		{models.ErrReferenceUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("list bookings: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
		{models.ErrStorageUnavailable, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
