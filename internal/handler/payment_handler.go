package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/academy-hq/academy-api/internal/models"
	"github.com/academy-hq/academy-api/internal/service"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
	"github.com/academy-hq/academy-api/pkg/response"
)

// PaymentHandler exposes payment and debt reconciliation endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// SetAttendancePayment godoc
// @Summary Toggle the payment status of a session charge
// @Description Moves one session-billed attendance row between PAID, UNPAID and DEBT, adjusting the enrollment debt accordingly. Settling to PAID writes a receipt.
// @Tags Payments
// @Accept json
// @Produce json
// @Param attendanceId path string true "Attendance ID"
// @Param payload body models.SetAttendancePaymentRequest true "Payment status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/attendance/{attendanceId} [put]
func (h *PaymentHandler) SetAttendancePayment(c *gin.Context) {
	var req models.SetAttendancePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	attendance, err := h.payments.SetAttendancePayment(c.Request.Context(), actorFromContext(c), c.Param("attendanceId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attendance, nil)
}

// ProcessMonthlyPayment godoc
// @Summary Settle the current monthly cycle
// @Description Marks the enrollment's monthly cycle as paid, resets the session counter, clears cycle debt and writes a MONTHLY receipt.
// @Tags Payments
// @Accept json
// @Produce json
// @Param enrollmentId path string true "Enrollment ID"
// @Param payload body models.MonthlyPaymentRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Router /payments/enrollments/{enrollmentId}/monthly [post]
func (h *PaymentHandler) ProcessMonthlyPayment(c *gin.Context) {
	var req models.MonthlyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollment, err := h.payments.ProcessMonthlyPayment(c.Request.Context(), actorFromContext(c), c.Param("enrollmentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// ResetMonthlyCycle godoc
// @Summary Reopen the monthly cycle
// @Description Resets the session counter and flips the cycle back to UNPAID without writing a receipt.
// @Tags Payments
// @Produce json
// @Param enrollmentId path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/enrollments/{enrollmentId}/reset-cycle [post]
func (h *PaymentHandler) ResetMonthlyCycle(c *gin.Context) {
	enrollment, err := h.payments.ResetMonthlyCycle(c.Request.Context(), c.Param("enrollmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// ClearEnrollmentDebt godoc
// @Summary Clear all debt on one enrollment
// @Description Zeroes the enrollment debt and writes a CLEARANCE receipt for the cleared amount.
// @Tags Payments
// @Accept json
// @Produce json
// @Param enrollmentId path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/enrollments/{enrollmentId}/clear-debt [post]
func (h *PaymentHandler) ClearEnrollmentDebt(c *gin.Context) {
	var payload struct {
		Notes *string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollment, err := h.payments.ClearEnrollmentDebt(c.Request.Context(), actorFromContext(c), c.Param("enrollmentId"), payload.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// PayAmount godoc
// @Summary Distribute a payment across a student's debts
// @Description Applies the amount largest debt first and returns the allocations and any remainder. Writes a PARTIAL receipt for the applied part.
// @Tags Payments
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param payload body models.PayAmountRequest true "Amount payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /payments/students/{studentId}/pay [post]
func (h *PaymentHandler) PayAmount(c *gin.Context) {
	var req models.PayAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.payments.PayAmount(c.Request.Context(), actorFromContext(c), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DebtSummary godoc
// @Summary Student debt summary
// @Description Aggregates outstanding debt per enrollment for one student.
// @Tags Payments
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /payments/students/{studentId}/debt [get]
func (h *PaymentHandler) DebtSummary(c *gin.Context) {
	summary, err := h.payments.DebtSummary(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ListReceipts godoc
// @Summary List payment receipts
// @Tags Payments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param enrollmentId query string false "Filter by enrollment"
// @Param kind query string false "SESSION, MONTHLY, PARTIAL or CLEARANCE"
// @Param from query string false "Start date (2006-01-02)"
// @Param to query string false "End date (2006-01-02)"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) ListReceipts(c *gin.Context) {
	var filter models.PaymentFilter
	filter.StudentID = c.Query("studentId")
	filter.EnrollmentID = c.Query("enrollmentId")
	if raw := c.Query("kind"); raw != "" {
		kind := models.PaymentKind(raw)
		filter.Kind = &kind
	}
	filter.DateFrom = dateQuery(c, "from")
	filter.DateTo = dateQuery(c, "to")
	filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder = listParams(c)

	receipts, total, err := h.payments.ListReceipts(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipts, paginationOf(filter.Page, filter.PageSize, total))
}
