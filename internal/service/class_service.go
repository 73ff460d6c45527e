package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/academy-hq/academy-api/internal/models"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Deactivate(ctx context.Context, id string) error
}

type classCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// ClassService manages class sections and their schedules.
type ClassService struct {
	repo      classRepository
	courses   classCourseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService.
func NewClassService(repo classRepository, courses classCourseReader, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClassService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// List returns classes with course context.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, total, nil
}

// Get returns a single class detail.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create registers a class section. An incomplete schedule is allowed; marks
// for such a class always need an admin override.
func (s *ClassService) Create(ctx context.Context, req models.CreateClassRequest) (*models.ClassDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if err := validateSchedule(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	class := &models.Class{
		CourseID:    req.CourseID,
		Name:        req.Name,
		TeacherName: req.TeacherName,
		DayOfWeek:   req.DayOfWeek,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Room:        req.Room,
		Active:      true,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return s.Get(ctx, class.ID)
}

// Update modifies a class section.
func (s *ClassService) Update(ctx context.Context, id string, req models.UpdateClassRequest) (*models.ClassDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if err := validateSchedule(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	class := existing.Class
	class.CourseID = req.CourseID
	class.Name = req.Name
	class.TeacherName = req.TeacherName
	class.DayOfWeek = req.DayOfWeek
	class.StartTime = req.StartTime
	class.EndTime = req.EndTime
	class.Room = req.Room
	class.Active = req.Active

	if err := s.repo.Update(ctx, &class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return s.Get(ctx, id)
}

// Deactivate soft-deletes a class.
func (s *ClassService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate class")
	}
	return nil
}

// validateSchedule requires start and end to come as a pair.
func validateSchedule(start, end *string) error {
	if (start == nil) != (end == nil) {
		return appErrors.Clone(appErrors.ErrValidation, "start_time and end_time must be set together")
	}
	return nil
}
