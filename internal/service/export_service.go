package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/academy-hq/academy-api/internal/models"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
	"github.com/academy-hq/academy-api/pkg/export"
	"github.com/academy-hq/academy-api/pkg/storage"
)

// Export formats accepted by the statement endpoints.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

// ExportFile is a rendered statement ready to stream to the client. When an
// archive is configured, DownloadToken re-fetches the stored copy later.
type ExportFile struct {
	Filename      string
	ContentType   string
	Data          []byte
	DownloadToken string
}

type exportStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
}

type exportAttendanceReader interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
}

type exportPaymentReader interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error)
}

// ExportService renders CSV and PDF statements from the ledger tables. An
// optional archive keeps a copy of every rendered file on disk, addressable
// through signed download tokens.
type ExportService struct {
	students    exportStudentReader
	attendances exportAttendanceReader
	payments    exportPaymentReader
	archive     *storage.LocalStorage
	signer      *storage.SignedURLSigner
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewExportService constructs an ExportService. archive and signer may be nil;
// exports are then streamed only.
func NewExportService(students exportStudentReader, attendances exportAttendanceReader, payments exportPaymentReader, archive *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		students:    students,
		attendances: attendances,
		payments:    payments,
		archive:     archive,
		signer:      signer,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// StudentStatement renders a student's attendance and charge history for a
// date range. Charges show the amount attached to the attendance row, so the
// statement reconciles against the enrollment's debt.
func (s *ExportService) StudentStatement(ctx context.Context, studentID, format string, from, to *time.Time) (*ExportFile, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	records, _, err := s.attendances.List(ctx, models.AttendanceFilter{
		StudentID: studentID,
		DateFrom:  from,
		DateTo:    to,
		PageSize:  100,
		SortBy:    "date",
		SortOrder: "ASC",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Class", "Status", "Charge", "Amount (DA)"},
	}
	for _, rec := range records {
		amount := ""
		if rec.PaymentAmount != nil {
			amount = rec.PaymentAmount.StringFixed(2)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":        rec.Date.Format("2006-01-02"),
			"Class":       rec.ClassName,
			"Status":      string(rec.Status),
			"Charge":      chargeLabel(rec.PaymentStatus),
			"Amount (DA)": amount,
		})
	}

	title := fmt.Sprintf("Statement - %s (%s)", student.FullName, student.RegistrationNo)
	filename := fmt.Sprintf("statement_%s", student.RegistrationNo)
	return s.render(dataset, format, title, filename)
}

// PaymentHistory renders a student's receipt history.
func (s *ExportService) PaymentHistory(ctx context.Context, studentID, format string, from, to *time.Time) (*ExportFile, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	receipts, _, err := s.payments.List(ctx, models.PaymentFilter{
		StudentID: studentID,
		DateFrom:  from,
		DateTo:    to,
		PageSize:  100,
		SortBy:    "received_at",
		SortOrder: "ASC",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment history")
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Kind", "Notes", "Amount (DA)"},
	}
	total := decimal.Zero
	for _, receipt := range receipts {
		notes := ""
		if receipt.Notes != nil {
			notes = *receipt.Notes
		}
		total = total.Add(receipt.Amount)
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":        receipt.ReceivedAt.Format("2006-01-02"),
			"Kind":        string(receipt.Kind),
			"Notes":       notes,
			"Amount (DA)": receipt.Amount.StringFixed(2),
		})
	}
	dataset.Rows = append(dataset.Rows, map[string]string{
		"Date":        "TOTAL",
		"Amount (DA)": total.StringFixed(2),
	})

	title := fmt.Sprintf("Payments - %s (%s)", student.FullName, student.RegistrationNo)
	filename := fmt.Sprintf("payments_%s", student.RegistrationNo)
	return s.render(dataset, format, title, filename)
}

// DebtReport renders the roster of students carrying outstanding debt.
func (s *ExportService) DebtReport(ctx context.Context, format string) (*ExportFile, error) {
	inDebt := true
	students, _, err := s.students.List(ctx, models.StudentFilter{
		InDebt:    &inDebt,
		PageSize:  100,
		SortBy:    "full_name",
		SortOrder: "ASC",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load debtors")
	}

	dataset := export.Dataset{
		Headers: []string{"Registration No", "Student", "Guardian Phone", "Enrollments", "Debt (DA)"},
	}
	total := decimal.Zero
	for _, student := range students {
		total = total.Add(student.TotalDebt)
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Registration No": student.RegistrationNo,
			"Student":         student.FullName,
			"Guardian Phone":  student.GuardianPhone,
			"Enrollments":     fmt.Sprintf("%d", student.ActiveEnrollments),
			"Debt (DA)":       student.TotalDebt.StringFixed(2),
		})
	}
	dataset.Rows = append(dataset.Rows, map[string]string{
		"Student":   "TOTAL",
		"Debt (DA)": total.StringFixed(2),
	})

	return s.render(dataset, format, "Outstanding Debt Report", "debt_report")
}

// OpenArchived resolves a signed download token to the stored export file.
func (s *ExportService) OpenArchived(token string) (*os.File, string, error) {
	if s.archive == nil || s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export archive is disabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.archive.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "archived export no longer exists")
	}
	return file, relPath, nil
}

func (s *ExportService) render(dataset export.Dataset, format, title, filename string) (*ExportFile, error) {
	generated := fmt.Sprintf("Generated at %s", time.Now().UTC().Format(time.RFC3339))

	var file *ExportFile
	switch strings.ToLower(format) {
	case FormatCSV, "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		file = &ExportFile{Filename: filename + ".csv", ContentType: "text/csv", Data: data}
	case FormatPDF:
		data, err := s.pdf.Render(dataset, title, generated)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		file = &ExportFile{Filename: filename + ".pdf", ContentType: "application/pdf", Data: data}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format, expected csv or pdf")
	}

	s.archiveCopy(file)
	return file, nil
}

// archiveCopy stores a timestamped copy of a rendered export and attaches a
// signed download token. Failures are logged, never propagated.
func (s *ExportService) archiveCopy(file *ExportFile) {
	if s.archive == nil || s.signer == nil {
		return
	}
	jobID := uuid.NewString()
	relPath := fmt.Sprintf("%s/%s", time.Now().UTC().Format("2006-01-02"), file.Filename)
	if _, err := s.archive.Save(relPath, file.Data); err != nil {
		s.logger.Warn("failed to archive export", zap.String("file", relPath), zap.Error(err))
		return
	}
	token, _, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		s.logger.Warn("failed to sign export download token", zap.String("file", relPath), zap.Error(err))
		return
	}
	file.DownloadToken = token
}

func chargeLabel(status models.AttendancePaymentStatus) string {
	if status == models.SessionUncharged {
		return "-"
	}
	return string(status)
}
