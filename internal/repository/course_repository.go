package repository

import (
	"errors"

	"palette_backend/internal/model"
	"palette_backend/internal/util"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) Tx(tx *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: tx}
}

// Upserts key off the normalized Canvas id: downloads are repeatable without
// duplicating rows.

func (r *CourseRepository) UpsertCourse(course *model.Course) error {
	var existing model.Course
	err := r.DB.Where("canvas_id = ?", course.CanvasID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.DB.Create(course).Error
	}
	if err != nil {
		return err
	}
	course.UUIDBase = existing.UUIDBase
	return r.DB.Save(course).Error
}

func (r *CourseRepository) UpsertAssignment(assignment *model.Assignment) error {
	var existing model.Assignment
	err := r.DB.Where("canvas_id = ?", assignment.CanvasID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.DB.Create(assignment).Error
	}
	if err != nil {
		return err
	}
	assignment.UUIDBase = existing.UUIDBase
	if assignment.RubricTemplateID == nil {
		assignment.RubricTemplateID = existing.RubricTemplateID
	}
	return r.DB.Save(assignment).Error
}

func (r *CourseRepository) UpsertStudent(student *model.Student) error {
	var existing model.Student
	err := r.DB.Where("canvas_id = ?", student.CanvasID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.DB.Create(student).Error
	}
	if err != nil {
		return err
	}
	student.UUIDBase = existing.UUIDBase
	return r.DB.Save(student).Error
}

func (r *CourseRepository) UpsertSubmission(submission *model.Submission) error {
	var existing model.Submission
	err := r.DB.Where("canvas_id = ?", submission.CanvasID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.DB.Create(submission).Error
	}
	if err != nil {
		return err
	}
	submission.UUIDBase = existing.UUIDBase
	return r.DB.Save(submission).Error
}

func (r *CourseRepository) FindCourseByID(id string) (*model.Course, error) {
	var course model.Course
	err := r.DB.First(&course, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) FindAssignmentByID(id string) (*model.Assignment, error) {
	var assignment model.Assignment
	err := r.DB.First(&assignment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *CourseRepository) FindStudentByCanvasID(canvasID string) (*model.Student, error) {
	var student model.Student
	err := r.DB.First(&student, "canvas_id = ?", canvasID).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *CourseRepository) FindSubmissionByID(id string) (*model.Submission, error) {
	var submission model.Submission
	err := r.DB.First(&submission, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

// GradingRow is a submission joined with its student and any existing
// assessment, shaped for a grading session listing.
type GradingRow struct {
	model.Submission
	StudentName  string   `json:"studentName"`
	StudentEmail string   `json:"studentEmail"`
	AssessmentID *string  `json:"assessmentId,omitempty"`
	CurrentScore *float64 `json:"currentScore,omitempty"`
}

func (r *CourseRepository) GradingRows(assignmentID string) ([]GradingRow, error) {
	var rows []GradingRow
	err := r.DB.Table("submissions s").
		Select("s.*, st.name as student_name, st.email as student_email, "+
			"ra.id as assessment_id, ra.score as current_score").
		Joins("JOIN students st ON s.student_id = st.id").
		Joins("LEFT JOIN rubric_assessments ra ON s.id = ra.submission_id").
		Where("s.assignment_id = ? AND s.deleted_at IS NULL", assignmentID).
		Order("st.name asc").
		Scan(&rows).Error
	return rows, err
}

// SubmissionSyncInfo recovers the Canvas identifiers needed for the composite
// submission PUT from one joined read.
type SubmissionSyncInfo struct {
	SubmissionID       string
	SubmissionCanvasID string
	AssignmentID       string
	AssignmentCanvasID string
	StudentCanvasID    string
	CourseCanvasID     string
}

func (r *CourseRepository) SyncInfo(submissionID string) (*SubmissionSyncInfo, error) {
	var info SubmissionSyncInfo
	err := r.DB.Table("submissions s").
		Select("s.id as submission_id, s.canvas_id as submission_canvas_id, "+
			"a.id as assignment_id, a.canvas_id as assignment_canvas_id, "+
			"st.canvas_id as student_canvas_id, c.canvas_id as course_canvas_id").
		Joins("JOIN assignments a ON s.assignment_id = a.id").
		Joins("JOIN students st ON s.student_id = st.id").
		Joins("LEFT JOIN courses c ON a.course_id = c.id").
		Where("s.id = ?", submissionID).
		Scan(&info).Error
	if err != nil {
		return nil, err
	}
	if info.SubmissionID == "" {
		return nil, util.ErrSubmissionNotFound
	}
	return &info, nil
}
