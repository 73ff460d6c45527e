package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/academy-hq/academy-api/api/swagger"
	"github.com/academy-hq/academy-api/internal/middleware"
	"github.com/academy-hq/academy-api/internal/models"
	"github.com/academy-hq/academy-api/internal/service"
	"github.com/academy-hq/academy-api/pkg/config"
	"github.com/academy-hq/academy-api/pkg/logger"
	"github.com/academy-hq/academy-api/pkg/middleware/cors"
	"github.com/academy-hq/academy-api/pkg/middleware/requestid"
)

// Handlers bundles every HTTP handler wired into the router.
type Handlers struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Students    *StudentHandler
	Courses     *CourseHandler
	Classes     *ClassHandler
	Enrollments *EnrollmentHandler
	Attendance  *AttendanceHandler
	Payments    *PaymentHandler
	Dashboard   *DashboardHandler
	Exports     *ExportHandler
}

// NewRouter builds the gin engine with middleware, role gates and routes.
func NewRouter(cfg *config.Config, log *zap.Logger, auth *service.AuthService, metrics *service.MetricsService, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestid.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(cors.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	if metrics != nil {
		r.Use(middleware.Metrics(metrics))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(auth))

	authed.POST("/auth/logout", h.Auth.Logout)
	authed.POST("/auth/change-password", h.Auth.ChangePassword)
	authed.GET("/auth/me", h.Auth.Me)

	// Every staff role may read rosters, ledgers and summaries.
	read := authed.Group("")
	read.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleTeacher))

	read.GET("/students", h.Students.List)
	read.GET("/students/:id", h.Students.Get)
	read.GET("/courses", h.Courses.List)
	read.GET("/courses/:id", h.Courses.Get)
	read.GET("/classes", h.Classes.List)
	read.GET("/classes/:id", h.Classes.Get)
	read.GET("/enrollments", h.Enrollments.List)
	read.GET("/enrollments/:id", h.Enrollments.Get)
	read.GET("/attendance", h.Attendance.History)
	read.GET("/attendance/classes/:classId/sheet", h.Attendance.ClassSheet)
	read.GET("/payments", h.Payments.ListReceipts)
	read.GET("/payments/students/:studentId/debt", h.Payments.DebtSummary)

	// Marking and money movement are for admins and desk staff.
	write := authed.Group("")
	write.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))

	write.POST("/students", h.Students.Create)
	write.PUT("/students/:id", h.Students.Update)
	write.DELETE("/students/:id", h.Students.Delete)
	write.POST("/courses", h.Courses.Create)
	write.PUT("/courses/:id", h.Courses.Update)
	write.DELETE("/courses/:id", h.Courses.Delete)
	write.POST("/classes", h.Classes.Create)
	write.PUT("/classes/:id", h.Classes.Update)
	write.DELETE("/classes/:id", h.Classes.Delete)
	write.POST("/enrollments", h.Enrollments.Create)
	write.DELETE("/enrollments/:id", h.Enrollments.Close)

	write.POST("/attendance/mark", h.Attendance.Mark)
	write.POST("/attendance/bulk", h.Attendance.BulkMark)
	write.DELETE("/attendance/enrollments/:enrollmentId/latest", h.Attendance.UnmarkLatest)

	write.PUT("/payments/attendance/:attendanceId", h.Payments.SetAttendancePayment)
	write.POST("/payments/enrollments/:enrollmentId/monthly", h.Payments.ProcessMonthlyPayment)
	write.POST("/payments/students/:studentId/pay", h.Payments.PayAmount)

	// Cycle resets, debt clearance and account management stay admin only.
	admin := authed.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))

	admin.POST("/payments/enrollments/:enrollmentId/reset-cycle", h.Payments.ResetMonthlyCycle)
	admin.POST("/payments/enrollments/:enrollmentId/clear-debt", h.Payments.ClearEnrollmentDebt)

	admin.GET("/users", h.Users.List)
	admin.GET("/users/:id", h.Users.Get)
	admin.POST("/users", h.Users.Create)
	admin.PUT("/users/:id", h.Users.Update)
	admin.DELETE("/users/:id", h.Users.Delete)

	if cfg.Dashboard.Enabled && h.Dashboard != nil {
		read.GET("/dashboard/summary", h.Dashboard.Summary)
	}

	if cfg.Exports.Enabled && h.Exports != nil {
		read.GET("/exports/students/:studentId/statement", h.Exports.StudentStatement)
		read.GET("/exports/students/:studentId/payments", h.Exports.PaymentHistory)
		read.GET("/exports/debt-report", h.Exports.DebtReport)
		read.GET("/exports/download", h.Exports.Download)
	}

	return r
}
