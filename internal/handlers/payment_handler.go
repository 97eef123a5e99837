package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/homex/internal/models"
	"github.com/joshua-takyi/homex/internal/services"
)

func DashboardHandler(l *services.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		empID, ok := employeeScope(c)
		if !ok {
			return
		}
		dashboard, err := l.Dashboard(c.Request.Context(), empID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(dashboard, ""))
	}
}

func FilterPaymentsHandler(l *services.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		empID, ok := employeeScope(c)
		if !ok {
			return
		}
		payments, err := l.Filter(c.Request.Context(), empID, c.DefaultQuery("timeFilter", "all"), c.DefaultQuery("statusFilter", "all"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(payments, ""))
	}
}

func EarningsStatisticsHandler(l *services.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		empID, ok := employeeScope(c)
		if !ok {
			return
		}
		series, err := l.EarningsTimeSeries(c.Request.Context(), empID, c.DefaultQuery("period", "month"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(series, ""))
	}
}

func parseOptionalDate(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := services.ParseDate(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ValidationResponse(models.NewValidationError(name, "must be a valid date (YYYY-MM-DD)")))
		return nil, false
	}
	return &t, true
}

// ExportPaymentsHandler returns the payments as JSON, or as a CSV download
// with format=csv.
func ExportPaymentsHandler(l *services.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		empID, ok := employeeScope(c)
		if !ok {
			return
		}
		start, ok := parseOptionalDate(c, "startDate")
		if !ok {
			return
		}
		end, ok := parseOptionalDate(c, "endDate")
		if !ok {
			return
		}
		if end != nil && len(c.Query("endDate")) == len(models.DateLayout) {
			// a calendar end date covers the whole day
			e := end.Add(24*time.Hour - time.Millisecond)
			end = &e
		}
		format := c.DefaultQuery("format", "json")
		if format != "json" && format != "csv" {
			c.JSON(http.StatusBadRequest, models.ValidationResponse(models.NewValidationError("format", "must be one of: json csv")))
			return
		}

		payments, err := l.Export(c.Request.Context(), empID, start, end)
		if err != nil {
			respondError(c, err)
			return
		}
		if format == "json" {
			c.JSON(http.StatusOK, models.SuccessResponse(payments, ""))
			return
		}

		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=earnings-%d.csv", empID))
		c.Status(http.StatusOK)
		if err := services.WriteCSV(c.Writer, payments); err != nil {
			_ = c.Error(err)
		}
	}
}

func UpcomingPaymentsHandler(l *services.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		empID, ok := employeeScope(c)
		if !ok {
			return
		}
		upcoming, err := l.Upcoming(c.Request.Context(), empID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(upcoming, ""))
	}
}

func GetPaymentHandler(l *services.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := caller(c)
		if !ok {
			return
		}
		id, ok := paramInt64(c, "id")
		if !ok {
			return
		}
		payment, err := l.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if !claims.CanActAsEmployee(payment.EmpID) {
			c.JSON(http.StatusNotFound, models.ErrorResponse("payment not found"))
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(payment, ""))
	}
}

// CreatePaymentHandler answers 201 for a new payment and 200 when the service
// was already paid.
func CreatePaymentHandler(l *services.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreatePaymentRequest
		if !bindJSON(c, &req) {
			return
		}
		payment, created, err := l.CreatePayment(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}
		if !created {
			c.JSON(http.StatusOK, models.SuccessResponse(payment, "Payment already recorded"))
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(payment, "Payment recorded"))
	}
}

type paymentStatusRequest struct {
	Status string `json:"status"`
}

func UpdatePaymentStatusHandler(l *services.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramInt64(c, "id")
		if !ok {
			return
		}
		var req paymentStatusRequest
		if !bindJSON(c, &req) {
			return
		}
		payment, err := l.UpdateStatus(c.Request.Context(), id, req.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(payment, "Payment status updated"))
	}
}

func EmployeeStatsHandler(l *services.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		empID, ok := employeeScope(c)
		if !ok {
			return
		}
		stats, err := l.TechnicianStats(c.Request.Context(), empID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stats, ""))
	}
}
