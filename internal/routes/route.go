package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/homex/internal/container"
	"github.com/joshua-takyi/homex/internal/handlers"
	"github.com/joshua-takyi/homex/internal/helpers"
	"github.com/joshua-takyi/homex/internal/middleware"
	"github.com/joshua-takyi/homex/internal/models"
)

const serviceName = "homex-api"

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(container *container.Container) *gin.Engine {
	if container.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.CORS(container.Config.CORSOrigins))
	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.StructuredLogger(container.Logger))
	r.Use(middleware.ErrorHandler(container.Logger, container.Config.IsProduction()))
	r.Use(gin.Recovery())

	staff := middleware.RequireRole(helpers.RoleTechnician, helpers.RoleAdmin)
	admin := middleware.RequireRole(helpers.RoleAdmin)
	limited := middleware.RateLimit(container.RateLimiter)

	v1 := r.Group("/api/v1")
	v1.GET("/health", handlers.HealthHandler())

	// public routes
	v1.GET("/bookings/available-slots", handlers.AvailableSlotsHandler(container.SlotService))
	v1.GET("/catalog/:id", limited, handlers.CatalogServiceHandler(container.ReferenceService))
	v1.POST("/bookings", middleware.OptionalAuth(container.Tokens, container.Logger), handlers.CreateBookingHandler(container.SlotService))

	protected := v1.Group("/")
	protected.Use(middleware.Auth(container.Tokens, container.Logger))

	bookingRoutes := protected.Group("/bookings")
	{
		bookingRoutes.GET("", handlers.ListBookingsHandler(container.BookingService))
		bookingRoutes.GET("/customer/:customerId", handlers.CustomerBookingsHandler(container.BookingService))
		bookingRoutes.GET("/:id", handlers.GetBookingHandler(container.BookingService))
		bookingRoutes.PATCH("/:id/status", handlers.UpdateBookingStatusHandler(container.BookingService))
		bookingRoutes.POST("/:id/review", handlers.ReviewBookingHandler(container.BookingService))
		bookingRoutes.DELETE("/:id", admin, handlers.DeleteBookingHandler(container.BookingService))
	}

	tracker := container.TrackerService
	protected.POST("/services/:id/rating", handlers.RateServiceHandler(tracker))
	serviceRoutes := protected.Group("/services", staff)
	{
		serviceRoutes.POST("", handlers.CreateServiceHandler(tracker))
		serviceRoutes.GET("/:id", handlers.ServiceDetailsHandler(tracker))
		serviceRoutes.PATCH("/:id", handlers.UpdateServiceInfoHandler(tracker))
		serviceRoutes.GET("/:id/notes", handlers.ServiceNotesHandler(tracker))
		serviceRoutes.POST("/:id/notes", handlers.AddServiceNoteHandler(tracker))
		serviceRoutes.GET("/:id/history", handlers.ServiceHistoryHandler(tracker))
		serviceRoutes.POST("/:id/requirements", handlers.SpecialRequirementsHandler(tracker))
		serviceRoutes.PATCH("/:id/status", handlers.ServiceStatusHandler(tracker))
		serviceRoutes.PATCH("/:id/confirm", handlers.ServiceTransitionHandler(tracker, models.ServiceConfirmed))
		serviceRoutes.PATCH("/:id/start", handlers.ServiceTransitionHandler(tracker, models.ServiceInProgress))
		serviceRoutes.PATCH("/:id/complete", handlers.ServiceTransitionHandler(tracker, models.ServiceCompleted))
		serviceRoutes.PATCH("/:id/reschedule", handlers.RescheduleServiceHandler(tracker))
		serviceRoutes.POST("/:id/attachments", handlers.UploadAttachmentHandler(tracker))
		serviceRoutes.GET("/:id/customer-contact", handlers.CustomerContactHandler(tracker))
		serviceRoutes.GET("/employee/:empId/schedule", handlers.EmployeeScheduleHandler(tracker))
		serviceRoutes.GET("/employee/:empId/today", handlers.EmployeeTodayHandler(tracker))
		serviceRoutes.GET("/employee/:empId/activities", handlers.EmployeeActivitiesHandler(tracker))
	}

	ledger := container.LedgerService
	paymentRoutes := protected.Group("/payments", staff)
	{
		paymentRoutes.GET("/employee/:empId/dashboard", handlers.DashboardHandler(ledger))
		paymentRoutes.GET("/employee/:empId/filter", handlers.FilterPaymentsHandler(ledger))
		paymentRoutes.GET("/employee/:empId/statistics", handlers.EarningsStatisticsHandler(ledger))
		paymentRoutes.GET("/employee/:empId/export", handlers.ExportPaymentsHandler(ledger))
		paymentRoutes.GET("/employee/:empId/upcoming", handlers.UpcomingPaymentsHandler(ledger))
		paymentRoutes.GET("/:id", handlers.GetPaymentHandler(ledger))
		paymentRoutes.POST("", admin, handlers.CreatePaymentHandler(ledger))
		paymentRoutes.PATCH("/:id/status", admin, handlers.UpdatePaymentStatusHandler(ledger))
	}

	protected.GET("/employees/:empId/stats", staff, handlers.EmployeeStatsHandler(ledger))

	reference := container.ReferenceService
	for _, kind := range []models.LocationKind{models.KindCountry, models.KindState, models.KindCity, models.KindArea} {
		path := "/" + string(kind)
		v1.GET(path, limited, handlers.WithKind(kind), handlers.ListLocationsHandler(reference))
		protected.POST(path, admin, handlers.WithKind(kind), handlers.CreateLocationHandler(reference))
		protected.PUT(path+"/:id", admin, handlers.WithKind(kind), handlers.UpdateLocationHandler(reference))
		protected.DELETE(path+"/:id", admin, handlers.WithKind(kind), handlers.DeleteLocationHandler(reference))
	}

	return r
}
