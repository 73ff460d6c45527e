package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/academy-hq/academy-api/internal/models"
	"github.com/academy-hq/academy-api/internal/service"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
	"github.com/academy-hq/academy-api/pkg/response"
)

// AttendanceHandler exposes the attendance ledger endpoints.
type AttendanceHandler struct {
	attendances *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendances *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendances: attendances}
}

// Mark godoc
// @Summary Mark attendance for one enrollment
// @Description Records or overwrites the mark for the enrollment on the given civil date. Session-billed enrollments are charged on the first mark of the day. A closed time window returns 409 with the window decision; admins may retry with force.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.MarkAttendanceRequest true "Mark payload"
// @Success 200 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/mark [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req models.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	attendance, err := h.attendances.Mark(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attendance, nil)
}

// BulkMark godoc
// @Summary Mark a whole class sheet
// @Description Marks every listed enrollment for the class date. Mode atomic fails the whole batch on the first conflict; partialOnError collects conflicts and applies the rest.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.BulkMarkAttendanceRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/bulk [post]
func (h *AttendanceHandler) BulkMark(c *gin.Context) {
	var req models.BulkMarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.attendances.BulkMark(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UnmarkLatest godoc
// @Summary Remove the most recent mark of an enrollment
// @Description Deletes the latest attendance row and rolls back its billing effect.
// @Tags Attendance
// @Produce json
// @Param enrollmentId path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/enrollments/{enrollmentId}/latest [delete]
func (h *AttendanceHandler) UnmarkLatest(c *gin.Context) {
	removed, err := h.attendances.UnmarkLatest(c.Request.Context(), c.Param("enrollmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, removed, nil)
}

// History godoc
// @Summary Query the attendance ledger
// @Tags Attendance
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param classId query string false "Filter by class"
// @Param enrollmentId query string false "Filter by enrollment"
// @Param status query string false "PRESENT, ABSENT or LATE"
// @Param paymentStatus query string false "PAID, UNPAID or DEBT"
// @Param from query string false "Start date (2006-01-02)"
// @Param to query string false "End date (2006-01-02)"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	var filter models.AttendanceFilter
	filter.StudentID = c.Query("studentId")
	filter.ClassID = c.Query("classId")
	filter.EnrollmentID = c.Query("enrollmentId")
	if raw := c.Query("status"); raw != "" {
		status := models.AttendanceStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("paymentStatus"); raw != "" {
		status := models.AttendancePaymentStatus(raw)
		filter.PaymentStatus = &status
	}
	filter.DateFrom = dateQuery(c, "from")
	filter.DateTo = dateQuery(c, "to")
	filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder = listParams(c)

	records, total, err := h.attendances.History(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, paginationOf(filter.Page, filter.PageSize, total))
}

// ClassSheet godoc
// @Summary Class sheet for a date
// @Description Lists every active enrollment of the class with its mark for the date, if any.
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Param date query string false "Civil date (2006-01-02), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /attendance/classes/{classId}/sheet [get]
func (h *AttendanceHandler) ClassSheet(c *gin.Context) {
	rows, err := h.attendances.ClassSheet(c.Request.Context(), c.Param("classId"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// dateQuery parses an optional civil date query param.
func dateQuery(c *gin.Context, name string) *time.Time {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}
