package model

// RubricTemplate is one version of a grading rubric. Editing a template that
// already backs an assessment produces a new template row instead of mutating
// this one, so historical grades keep resolving to the definition they were
// scored against.
type RubricTemplate struct {
	UUIDBase
	CanvasID       string  `gorm:"size:32;index" json:"canvasId,omitempty"`
	Name           string  `gorm:"size:255;not null" json:"name"`
	Description    string  `gorm:"type:text" json:"description"`
	PointsPossible float64 `gorm:"default:0" json:"pointsPossible"`
	Version        int     `gorm:"default:1" json:"version"`
	IsActive       bool    `gorm:"default:true" json:"isActive"`
	CreatedBy      string  `gorm:"size:64" json:"createdBy"`
	LastModifiedBy string  `gorm:"size:64" json:"lastModifiedBy"`

	Criteria []RubricCriterion `gorm:"foreignKey:RubricTemplateID" json:"criteria"`
}

func (RubricTemplate) TableName() string {
	return "rubric_templates"
}

type RubricCriterion struct {
	UUIDBase
	RubricTemplateID  string  `gorm:"index;type:varchar(36);not null" json:"rubricTemplateId"`
	CanvasCriterionID string  `gorm:"size:32" json:"canvasCriterionId,omitempty"`
	Description       string  `gorm:"size:255;not null" json:"description"`
	LongDescription   string  `gorm:"type:text" json:"longDescription"`
	Points            float64 `gorm:"default:0" json:"points"`
	Position          int     `gorm:"default:0" json:"position"`

	Ratings []RubricRating `gorm:"foreignKey:CriterionID" json:"ratings"`
}

func (RubricCriterion) TableName() string {
	return "rubric_criteria"
}

// MaxRatingPoints is the criterion's effective maximum, recomputed from the
// loaded ratings rather than trusting the cached Points column.
func (c *RubricCriterion) MaxRatingPoints() float64 {
	max := 0.0
	for _, r := range c.Ratings {
		if r.Points > max {
			max = r.Points
		}
	}
	return max
}

type RubricRating struct {
	UUIDBase
	CriterionID     string  `gorm:"index;type:varchar(36);not null" json:"criterionId"`
	CanvasRatingID  string  `gorm:"size:32" json:"canvasRatingId,omitempty"`
	Description     string  `gorm:"size:255;not null" json:"description"`
	LongDescription string  `gorm:"type:text" json:"longDescription"`
	Points          float64 `gorm:"default:0" json:"points"`
	Position        int     `gorm:"default:0" json:"position"`
}

func (RubricRating) TableName() string {
	return "rubric_ratings"
}

// AssignmentRubric resolves which rubric template is currently in effect for
// an assignment, independent of the template's own lifecycle.
type AssignmentRubric struct {
	UUIDBase
	AssignmentID     string `gorm:"uniqueIndex;type:varchar(36);not null" json:"assignmentId"`
	RubricTemplateID string `gorm:"index;type:varchar(36);not null" json:"rubricTemplateId"`
	CourseID         string `gorm:"index;type:varchar(36)" json:"courseId"`
}

func (AssignmentRubric) TableName() string {
	return "assignment_rubrics"
}
