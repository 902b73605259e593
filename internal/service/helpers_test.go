package service

import (
	"context"
	"errors"
	"testing"

	"palette_backend/internal/config"
	"palette_backend/internal/model"
	"palette_backend/internal/repository"
	"palette_backend/pkg/database"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitDB(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	return db
}

func newRubricService(t *testing.T, db *gorm.DB) *RubricService {
	t.Helper()
	return NewRubricService(
		repository.NewRubricRepository(db),
		repository.NewCourseRepository(db),
		db,
	)
}

func newGradingService(t *testing.T, db *gorm.DB) *GradingService {
	t.Helper()
	return NewGradingService(
		repository.NewAssessmentRepository(db),
		repository.NewCourseRepository(db),
		repository.NewRubricRepository(db),
		repository.NewAnalyticsRepository(db),
		repository.NewSyncQueueRepository(db),
		db,
	)
}

// seededCourse is the fixture graph most service tests grade against.
type seededCourse struct {
	Course      *model.Course
	Assignment  *model.Assignment
	Student     *model.Student
	Submission  *model.Submission
	Submission2 *model.Submission
}

func seedCourse(t *testing.T, db *gorm.DB) *seededCourse {
	t.Helper()

	course := &model.Course{CanvasID: "101", Name: "Intro to Testing", CourseCode: "TEST101"}
	if err := db.Create(course).Error; err != nil {
		t.Fatalf("seed course: %v", err)
	}
	assignment := &model.Assignment{
		CanvasID:       "201",
		CourseID:       course.ID,
		Name:           "Project 1",
		PointsPossible: 20,
	}
	if err := db.Create(assignment).Error; err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	student := &model.Student{CanvasID: "301", CourseID: course.ID, Name: "Ada Lovelace", Email: "ada@example.edu"}
	if err := db.Create(student).Error; err != nil {
		t.Fatalf("seed student: %v", err)
	}
	student2 := &model.Student{CanvasID: "302", CourseID: course.ID, Name: "Grace Hopper", Email: "grace@example.edu"}
	if err := db.Create(student2).Error; err != nil {
		t.Fatalf("seed student: %v", err)
	}
	submission := &model.Submission{CanvasID: "401", AssignmentID: assignment.ID, StudentID: student.ID}
	if err := db.Create(submission).Error; err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	submission2 := &model.Submission{CanvasID: "402", AssignmentID: assignment.ID, StudentID: student2.ID}
	if err := db.Create(submission2).Error; err != nil {
		t.Fatalf("seed submission: %v", err)
	}

	return &seededCourse{
		Course:      course,
		Assignment:  assignment,
		Student:     student,
		Submission:  submission,
		Submission2: submission2,
	}
}

// attachRubric creates a two-criterion rubric and points the assignment at it.
func attachRubric(t *testing.T, db *gorm.DB, rubrics *RubricService, fixture *seededCourse) *model.RubricTemplate {
	t.Helper()

	tpl, err := rubrics.CreateRubric(RubricReq{
		Name:           "Project Rubric",
		PointsPossible: 20,
		Criteria: []CriterionReq{
			{Description: "Correctness", Points: 10},
			{Description: "Style", Points: 10},
		},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("create rubric: %v", err)
	}
	if err := rubrics.AttachToAssignment(fixture.Assignment.ID, tpl.ID); err != nil {
		t.Fatalf("attach rubric: %v", err)
	}
	return tpl
}

// fakeCanvas implements CanvasAPI in memory. Set fail to make every call
// error; overrides take precedence when set.
type fakeCanvas struct {
	fail bool

	createRubricFn func(ctx context.Context, courseCanvasID string, payload *CanvasRubricUpload) (*CanvasRubric, error)
	putFn          func(ctx context.Context, courseCanvasID, assignmentCanvasID, studentCanvasID string, body interface{}) error

	pings        int
	putBodies    []interface{}
	createdCount int
	courses      []CanvasCourse
}

var errFakeCanvas = errors.New("canvas unavailable")

func (f *fakeCanvas) Ping(ctx context.Context) error {
	f.pings++
	if f.fail {
		return errFakeCanvas
	}
	return nil
}

func (f *fakeCanvas) ListCourses(ctx context.Context) ([]CanvasCourse, error) {
	if f.fail {
		return nil, errFakeCanvas
	}
	return f.courses, nil
}

func (f *fakeCanvas) GetRubric(ctx context.Context, courseCanvasID, rubricCanvasID string) (*CanvasRubric, error) {
	if f.fail {
		return nil, errFakeCanvas
	}
	return &CanvasRubric{ID: "72360000000000555", Title: "Downloaded Rubric"}, nil
}

func (f *fakeCanvas) CreateRubric(ctx context.Context, courseCanvasID string, payload *CanvasRubricUpload) (*CanvasRubric, error) {
	if f.createRubricFn != nil {
		return f.createRubricFn(ctx, courseCanvasID, payload)
	}
	if f.fail {
		return nil, errFakeCanvas
	}
	f.createdCount++
	return &CanvasRubric{ID: "72360000000000999", Title: payload.Rubric.Title}, nil
}

func (f *fakeCanvas) ListAssignments(ctx context.Context, courseCanvasID string) ([]CanvasAssignment, error) {
	if f.fail {
		return nil, errFakeCanvas
	}
	return nil, nil
}

func (f *fakeCanvas) ListSubmissions(ctx context.Context, courseCanvasID, assignmentCanvasID string) ([]CanvasSubmission, error) {
	if f.fail {
		return nil, errFakeCanvas
	}
	return nil, nil
}

func (f *fakeCanvas) PutSubmission(ctx context.Context, courseCanvasID, assignmentCanvasID, studentCanvasID string, body interface{}) error {
	if f.putFn != nil {
		return f.putFn(ctx, courseCanvasID, assignmentCanvasID, studentCanvasID, body)
	}
	if f.fail {
		return errFakeCanvas
	}
	f.putBodies = append(f.putBodies, body)
	return nil
}

func newSyncService(t *testing.T, db *gorm.DB, client CanvasAPI, online bool) (*SyncService, *ConnectivityMonitor) {
	t.Helper()

	monitor := NewConnectivityMonitor(client, 0)
	monitor.SetOnline(online)

	rubrics := newRubricService(t, db)
	svc := NewSyncService(
		repository.NewSyncQueueRepository(db),
		rubrics,
		repository.NewCourseRepository(db),
		repository.NewAssessmentRepository(db),
		client,
		monitor,
		db,
		config.SyncConfig{BatchSize: 50, MaxRetries: 3},
	)
	return svc, monitor
}
