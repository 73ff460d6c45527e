package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/academy-hq/academy-api/internal/service"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
	"github.com/academy-hq/academy-api/pkg/response"
)

// ExportHandler streams CSV and PDF exports.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// StudentStatement godoc
// @Summary Export a student's attendance statement
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param studentId path string true "Student ID"
// @Param format query string false "csv or pdf" default(csv)
// @Param from query string false "Start date (2006-01-02)"
// @Param to query string false "End date (2006-01-02)"
// @Success 200 {file} file
// @Router /exports/students/{studentId}/statement [get]
func (h *ExportHandler) StudentStatement(c *gin.Context) {
	file, err := h.exports.StudentStatement(c.Request.Context(), c.Param("studentId"), c.Query("format"), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.stream(c, file)
}

// PaymentHistory godoc
// @Summary Export a student's payment history
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param studentId path string true "Student ID"
// @Param format query string false "csv or pdf" default(csv)
// @Param from query string false "Start date (2006-01-02)"
// @Param to query string false "End date (2006-01-02)"
// @Success 200 {file} file
// @Router /exports/students/{studentId}/payments [get]
func (h *ExportHandler) PaymentHistory(c *gin.Context) {
	file, err := h.exports.PaymentHistory(c.Request.Context(), c.Param("studentId"), c.Query("format"), dateQuery(c, "from"), dateQuery(c, "to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.stream(c, file)
}

// DebtReport godoc
// @Summary Export the outstanding debt report
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /exports/debt-report [get]
func (h *ExportHandler) DebtReport(c *gin.Context) {
	file, err := h.exports.DebtReport(c.Request.Context(), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.stream(c, file)
}

// Download godoc
// @Summary Download an archived export
// @Description Fetches a previously generated export by its signed download token.
// @Tags Exports
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, relPath, err := h.exports.OpenArchived(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}

	name := filepath.Base(relPath)
	contentType := "text/csv"
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		contentType = "application/pdf"
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}

func (h *ExportHandler) stream(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	if file.DownloadToken != "" {
		c.Header("X-Download-Token", file.DownloadToken)
	}
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
