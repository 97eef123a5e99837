package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/homex/internal/models"
	"github.com/joshua-takyi/homex/internal/services"
)

const maxAttachmentSize = 10 << 20

// serviceScope loads :id and checks the caller owns the work item.
func serviceScope(c *gin.Context, t *services.TrackerService) (*models.Service, bool) {
	claims, ok := caller(c)
	if !ok {
		return nil, false
	}
	id, ok := paramInt64(c, "id")
	if !ok {
		return nil, false
	}
	svc, err := t.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !claims.CanActAsEmployee(svc.EmpID) {
		c.JSON(http.StatusForbidden, models.ErrorResponse("not allowed to access this service"))
		return nil, false
	}
	return svc, true
}

func CreateServiceHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := caller(c)
		if !ok {
			return
		}
		var req services.CreateServiceRequest
		if !bindJSON(c, &req) {
			return
		}
		if !claims.IsAdmin() {
			req.EmpID = claims.EmpID
		}

		svc, err := t.Create(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(svc, "Service created successfully"))
	}
}

func ServiceDetailsHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceScope(c, t)
		if !ok {
			return
		}
		details, err := t.Details(c.Request.Context(), svc.ServiceID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(details, ""))
	}
}

func ServiceNotesHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceScope(c, t)
		if !ok {
			return
		}
		notes, err := t.Notes(c.Request.Context(), svc.ServiceID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(notes, ""))
	}
}

func AddServiceNoteHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceScope(c, t)
		if !ok {
			return
		}
		var req services.NoteRequest
		if !bindJSON(c, &req) {
			return
		}
		note, err := t.AddNote(c.Request.Context(), svc.ServiceID, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(note, "Note added"))
	}
}

func ServiceHistoryHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceScope(c, t)
		if !ok {
			return
		}
		history, err := t.History(c.Request.Context(), svc.ServiceID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(history, ""))
	}
}

func UpdateServiceInfoHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceScope(c, t)
		if !ok {
			return
		}
		var req services.UpdateInfoRequest
		if !bindJSON(c, &req) {
			return
		}
		claims, _ := caller(c)
		updated, err := t.UpdateInfo(c.Request.Context(), svc.ServiceID, &req, claims.Actor())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(updated, "Service updated"))
	}
}

func SpecialRequirementsHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceScope(c, t)
		if !ok {
			return
		}
		var req services.RequirementsRequest
		if !bindJSON(c, &req) {
			return
		}
		claims, _ := caller(c)
		updated, err := t.AddSpecialRequirements(c.Request.Context(), svc.ServiceID, &req, claims.Actor())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(updated, "Special requirements saved"))
	}
}

type serviceStatusRequest struct {
	Status string `json:"status"`
	services.TransitionOptions
}

// ServiceStatusHandler applies the transition named in the body.
func ServiceStatusHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceScope(c, t)
		if !ok {
			return
		}
		var req serviceStatusRequest
		if !bindJSON(c, &req) {
			return
		}
		claims, _ := caller(c)
		updated, err := t.Transition(c.Request.Context(), svc.ServiceID, models.ServiceStatus(req.Status), req.TransitionOptions, claims.Actor())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(updated, "Service status updated"))
	}
}

// ServiceTransitionHandler serves the fixed-target endpoints (confirm, start,
// complete). An empty body is allowed.
func ServiceTransitionHandler(t *services.TrackerService, to models.ServiceStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceScope(c, t)
		if !ok {
			return
		}
		var opts services.TransitionOptions
		if c.Request.ContentLength > 0 && !bindJSON(c, &opts) {
			return
		}
		claims, _ := caller(c)
		updated, err := t.Transition(c.Request.Context(), svc.ServiceID, to, opts, claims.Actor())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(updated, "Service "+string(to)))
	}
}

func RescheduleServiceHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceScope(c, t)
		if !ok {
			return
		}
		var req services.RescheduleRequest
		if !bindJSON(c, &req) {
			return
		}
		claims, _ := caller(c)
		updated, err := t.Reschedule(c.Request.Context(), svc.ServiceID, &req, claims.Actor())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(updated, "Service rescheduled"))
	}
}

// RateServiceHandler is open to any authenticated caller; customers rate the
// work done for them.
func RateServiceHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := caller(c); !ok {
			return
		}
		id, ok := paramInt64(c, "id")
		if !ok {
			return
		}
		var req services.RatingRequest
		if !bindJSON(c, &req) {
			return
		}
		svc, err := t.Rate(c.Request.Context(), id, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(svc, "Rating recorded"))
	}
}

func UploadAttachmentHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceScope(c, t)
		if !ok {
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ValidationResponse(models.NewValidationError("file", "is required")))
			return
		}
		if fh.Size > maxAttachmentSize {
			c.JSON(http.StatusBadRequest, models.ValidationResponse(models.NewValidationError("file", "must be at most 10MB")))
			return
		}
		f, err := fh.Open()
		if err != nil {
			respondError(c, err)
			return
		}
		defer f.Close()

		updated, err := t.AddAttachment(c.Request.Context(), svc.ServiceID, f, fh.Filename)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(updated, "Attachment uploaded"))
	}
}

func CustomerContactHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := serviceScope(c, t)
		if !ok {
			return
		}
		contact, err := t.CustomerContact(c.Request.Context(), svc.ServiceID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(contact, ""))
	}
}

func EmployeeScheduleHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		empID, ok := employeeScope(c)
		if !ok {
			return
		}
		schedule, err := t.Schedule(c.Request.Context(), empID, c.DefaultQuery("view", "day"), c.Query("date"), c.Query("status"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(schedule, ""))
	}
}

func EmployeeTodayHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		empID, ok := employeeScope(c)
		if !ok {
			return
		}
		today, err := t.Today(c.Request.Context(), empID)
		if err != nil {
			respondError(c, err)
			return
		}
		upcoming, err := t.Upcoming(c.Request.Context(), empID, 10)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
			"today":    today,
			"upcoming": upcoming,
		}, ""))
	}
}

func EmployeeActivitiesHandler(t *services.TrackerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		empID, ok := employeeScope(c)
		if !ok {
			return
		}
		limit, ok := queryInt(c, "limit", 20)
		if !ok {
			return
		}
		activities, err := t.Activities(c.Request.Context(), empID, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(activities, ""))
	}
}
