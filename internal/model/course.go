package model

import "time"

type Course struct {
	UUIDBase
	CanvasID   string `gorm:"size:32;uniqueIndex" json:"canvasId"`
	Name       string `gorm:"size:255;not null" json:"name"`
	CourseCode string `gorm:"size:64" json:"courseCode"`
	Term       string `gorm:"size:64" json:"term"`
}

func (Course) TableName() string {
	return "courses"
}

type Assignment struct {
	UUIDBase
	CanvasID         string     `gorm:"size:32;uniqueIndex" json:"canvasId"`
	CourseID         string     `gorm:"index;type:varchar(36)" json:"courseId"`
	Name             string     `gorm:"size:255;not null" json:"name"`
	Description      string     `gorm:"type:text" json:"description"`
	PointsPossible   float64    `gorm:"default:0" json:"pointsPossible"`
	DueAt            *time.Time `json:"dueAt,omitempty"`
	RubricTemplateID *string    `gorm:"type:varchar(36);index" json:"rubricTemplateId,omitempty"`
}

func (Assignment) TableName() string {
	return "assignments"
}

type Student struct {
	UUIDBase
	CanvasID string `gorm:"size:32;uniqueIndex" json:"canvasId"`
	CourseID string `gorm:"index;type:varchar(36)" json:"courseId"`
	Name     string `gorm:"size:255;not null" json:"name"`
	Email    string `gorm:"size:255" json:"email"`
}

func (Student) TableName() string {
	return "students"
}

type Submission struct {
	UUIDBase
	CanvasID       string     `gorm:"size:32;uniqueIndex" json:"canvasId"`
	AssignmentID   string     `gorm:"index;type:varchar(36);not null" json:"assignmentId"`
	StudentID      string     `gorm:"index;type:varchar(36);not null" json:"studentId"`
	SubmittedAt    *time.Time `json:"submittedAt,omitempty"`
	Score          *float64   `json:"score,omitempty"`
	Grade          string     `gorm:"size:32" json:"grade"`
	WorkflowState  string     `gorm:"size:32" json:"workflowState"`
	SubmissionType string     `gorm:"size:32" json:"submissionType"`
}

func (Submission) TableName() string {
	return "submissions"
}
