package model

import "time"

// Comment types accepted by the grading flow and the Canvas composite PUT.
const (
	CommentIndividual = "individual"
	CommentGroup      = "group"
	CommentGeneral    = "general"
)

// RubricAssessment is one completed grading of a submission against the
// rubric template version in effect at grading time. The template reference
// is never repointed after creation.
type RubricAssessment struct {
	UUIDBase
	SubmissionID     string     `gorm:"uniqueIndex;type:varchar(36);not null" json:"submissionId"`
	RubricTemplateID string     `gorm:"index;type:varchar(36);not null" json:"rubricTemplateId"`
	AssessorID       string     `gorm:"size:64" json:"assessorId"`
	Score            float64    `gorm:"default:0" json:"score"`
	IsSynced         bool       `gorm:"default:false" json:"isSynced"`
	LastSynced       *time.Time `json:"lastSynced,omitempty"`

	CriterionAssessments []CriterionAssessment `gorm:"foreignKey:AssessmentID" json:"criterionAssessments"`
}

func (RubricAssessment) TableName() string {
	return "rubric_assessments"
}

type CriterionAssessment struct {
	UUIDBase
	AssessmentID string  `gorm:"index:idx_assessment_criterion,unique;type:varchar(36);not null" json:"assessmentId"`
	CriterionID  string  `gorm:"index:idx_assessment_criterion,unique;type:varchar(36);not null" json:"criterionId"`
	RatingID     *string `gorm:"type:varchar(36)" json:"ratingId,omitempty"`
	Points       float64 `gorm:"default:0" json:"points"`
	Comments     string  `gorm:"type:text" json:"comments"`
}

func (CriterionAssessment) TableName() string {
	return "criterion_assessments"
}

type Comment struct {
	UUIDBase
	SubmissionID string     `gorm:"index;type:varchar(36);not null" json:"submissionId"`
	AssessmentID *string    `gorm:"type:varchar(36)" json:"assessmentId,omitempty"`
	CommentType  string     `gorm:"size:16;default:'general'" json:"commentType"`
	Content      string     `gorm:"type:text;not null" json:"content"`
	AuthorID     string     `gorm:"size:64" json:"authorId"`
	IsSynced     bool       `gorm:"default:false" json:"isSynced"`
	LastSynced   *time.Time `json:"lastSynced,omitempty"`
}

func (Comment) TableName() string {
	return "comments"
}
