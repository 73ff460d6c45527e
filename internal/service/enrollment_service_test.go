package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/academy-hq/academy-api/internal/models"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
)

type mockEnrollRepo struct {
	enrollments map[string]models.EnrollmentDetail
	active      map[string]models.Enrollment
	closed      []string
}

func newMockEnrollRepo() *mockEnrollRepo {
	return &mockEnrollRepo{
		enrollments: make(map[string]models.EnrollmentDetail),
		active:      make(map[string]models.Enrollment),
	}
}

func (m *mockEnrollRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *mockEnrollRepo) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollRepo) FindActive(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	if e, ok := m.active[studentID+"/"+classID]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollRepo) Create(ctx context.Context, enr *models.Enrollment) error {
	if enr.ID == "" {
		enr.ID = "generated"
	}
	enr.Status = models.EnrollmentStatusActive
	m.enrollments[enr.ID] = models.EnrollmentDetail{Enrollment: *enr}
	m.active[enr.StudentID+"/"+enr.ClassID] = *enr
	return nil
}

func (m *mockEnrollRepo) Close(ctx context.Context, id string, leftAt time.Time) error {
	if _, ok := m.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	m.closed = append(m.closed, id)
	return nil
}

type mockStudentReader struct {
	students map[string]models.StudentDetail
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func enrollmentFixtures() (*mockEnrollRepo, *mockStudentReader, *mockClassReader) {
	repo := newMockEnrollRepo()
	students := &mockStudentReader{students: map[string]models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", FullName: "Amine", Active: true}},
	}}
	classes := &mockClassReader{classes: map[string]models.ClassDetail{
		"class-1": {
			Class:       models.Class{ID: "class-1", Name: "Math A", Active: true},
			PricingType: models.PricingSession,
		},
	}}
	return repo, students, classes
}

func TestEnrollmentServiceCreateCopiesPricingType(t *testing.T) {
	repo, students, classes := enrollmentFixtures()
	svc := NewEnrollmentService(repo, students, classes, validator.New(), zap.NewNop())

	detail, err := svc.Create(context.Background(), models.CreateEnrollmentRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSession, detail.PaymentType)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
}

func TestEnrollmentServiceCreateDuplicateActive(t *testing.T) {
	repo, students, classes := enrollmentFixtures()
	svc := NewEnrollmentService(repo, students, classes, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), models.CreateEnrollmentRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), models.CreateEnrollmentRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCreateInactiveStudent(t *testing.T) {
	repo, students, classes := enrollmentFixtures()
	s := students.students["stu-1"]
	s.Active = false
	students.students["stu-1"] = s
	svc := NewEnrollmentService(repo, students, classes, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), models.CreateEnrollmentRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCreateUnknownClass(t *testing.T) {
	repo, students, classes := enrollmentFixtures()
	svc := NewEnrollmentService(repo, students, classes, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), models.CreateEnrollmentRequest{StudentID: "stu-1", ClassID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceClose(t *testing.T) {
	repo, students, classes := enrollmentFixtures()
	svc := NewEnrollmentService(repo, students, classes, validator.New(), zap.NewNop())

	detail, err := svc.Create(context.Background(), models.CreateEnrollmentRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.NoError(t, err)

	require.NoError(t, svc.Close(context.Background(), detail.ID))
	assert.Equal(t, []string{detail.ID}, repo.closed)

	err = svc.Close(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
