package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/homex/internal/helpers"
	"github.com/joshua-takyi/homex/internal/middleware"
	"github.com/joshua-takyi/homex/internal/models"
	"github.com/joshua-takyi/homex/internal/services"
)

func AvailableSlotsHandler(s *services.SlotService) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := services.AvailabilityQuery{
			Date:      c.Query("date"),
			ServiceID: c.Query("serviceId"),
			City:      c.Query("city"),
			Area:      c.Query("area"),
		}
		if strings.TrimSpace(q.Date) == "" {
			c.JSON(http.StatusBadRequest, models.ValidationResponse(models.NewValidationError("date", "is required")))
			return
		}

		availability, err := s.QueryAvailability(c.Request.Context(), q)
		if err != nil {
			respondError(c, err)
			return
		}
		res := models.SuccessResponse(availability, "")
		res.Degraded = availability.Degraded
		c.JSON(http.StatusOK, res)
	}
}

const guestActor = "guest"

func CreateBookingHandler(s *services.SlotService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.ReserveRequest
		if !bindJSON(c, &req) {
			return
		}
		actor := guestActor
		if claims, ok := middleware.Claims(c); ok {
			if !claims.IsAdmin() || req.CustomerID == "" {
				req.CustomerID = claims.UserID
			}
			actor = claims.Actor()
		} else {
			// guests are identified by their contact details only
			req.CustomerID = ""
		}

		booking, err := s.Reserve(c.Request.Context(), &req, actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(booking, "Booking created successfully"))
	}
}

// canViewBooking lets admins, the booking's customer and its assigned
// technician read it.
func canViewBooking(claims *helpers.EnhancedClaims, b *models.Booking) bool {
	switch {
	case claims.IsAdmin():
		return true
	case claims.IsTechnician():
		return b.AssignedTo != 0 && b.AssignedTo == claims.EmpID
	default:
		return b.CustomerID != "" && b.CustomerID == claims.UserID
	}
}

func GetBookingHandler(s *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := caller(c)
		if !ok {
			return
		}
		booking, err := s.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if !canViewBooking(claims, booking) {
			c.JSON(http.StatusNotFound, models.ErrorResponse("booking not found"))
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(booking, ""))
	}
}

func ListBookingsHandler(s *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := caller(c)
		if !ok {
			return
		}
		limit, ok := queryInt(c, "limit", 50)
		if !ok {
			return
		}
		f := models.BookingFilter{
			CustomerID: c.Query("customerId"),
			Status:     models.BookingStatus(c.Query("status")),
			Limit:      limit,
		}
		if !claims.IsAdmin() {
			f.CustomerID = claims.UserID
		}
		if d := c.Query("date"); d != "" {
			date, err := services.ParseDate(d)
			if err != nil {
				c.JSON(http.StatusBadRequest, models.ValidationResponse(models.NewValidationError("date", "must be a valid date (YYYY-MM-DD)")))
				return
			}
			f.Date = &date
		}

		bookings, err := s.List(c.Request.Context(), f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.PaginatedResponse(bookings, 1, f.Limit, len(bookings)))
	}
}

func CustomerBookingsHandler(s *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := caller(c)
		if !ok {
			return
		}
		customerID := c.Param("customerId")
		if !claims.IsAdmin() && customerID != claims.UserID {
			c.JSON(http.StatusForbidden, models.ErrorResponse("not allowed to list another customer's bookings"))
			return
		}
		bookings, err := s.List(c.Request.Context(), models.BookingFilter{CustomerID: customerID})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(bookings, ""))
	}
}

// UpdateBookingStatusHandler is reserved for staff. Customers cancel through
// the same endpoint but may only request cancellation of their own booking.
func UpdateBookingStatusHandler(s *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := caller(c)
		if !ok {
			return
		}
		var req services.TransitionRequest
		if !bindJSON(c, &req) {
			return
		}
		id := c.Param("id")

		if !claims.IsAdmin() {
			booking, err := s.Get(c.Request.Context(), id)
			if err != nil {
				respondError(c, err)
				return
			}
			allowed := canViewBooking(claims, booking)
			if !claims.IsTechnician() && req.Status != string(models.BookingCancelled) {
				allowed = false
			}
			if claims.IsTechnician() && req.Status == string(models.BookingAssigned) {
				allowed = false
			}
			if !allowed {
				c.JSON(http.StatusForbidden, models.ErrorResponse("not allowed to change this booking"))
				return
			}
		}

		booking, err := s.Transition(c.Request.Context(), id, &req, claims.Actor())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(booking, "Booking status updated"))
	}
}

func ReviewBookingHandler(s *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := caller(c)
		if !ok {
			return
		}
		var req services.ReviewRequest
		if !bindJSON(c, &req) {
			return
		}
		id := c.Param("id")
		if !claims.IsAdmin() {
			booking, err := s.Get(c.Request.Context(), id)
			if err != nil {
				respondError(c, err)
				return
			}
			if booking.CustomerID != claims.UserID {
				c.JSON(http.StatusForbidden, models.ErrorResponse("only the customer can review this booking"))
				return
			}
		}

		booking, err := s.AddReview(c.Request.Context(), id, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(booking, "Review added"))
	}
}

func DeleteBookingHandler(s *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := caller(c)
		if !ok {
			return
		}
		if err := s.Delete(c.Request.Context(), c.Param("id"), claims.Actor()); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Booking deleted"))
	}
}
