package repository

import (
	"errors"
	"fmt"

	"palette_backend/internal/model"
	"palette_backend/internal/util"

	"gorm.io/gorm"
)

type RubricRepository struct {
	DB *gorm.DB
}

func NewRubricRepository(db *gorm.DB) *RubricRepository {
	return &RubricRepository{DB: db}
}

// Tx returns a view of the repository bound to an open transaction.
func (r *RubricRepository) Tx(tx *gorm.DB) *RubricRepository {
	return &RubricRepository{DB: tx}
}

// CreateTemplateTree inserts the template with its nested criteria and
// ratings in one transaction; a partially created rubric is never observable.
func (r *RubricRepository) CreateTemplateTree(tpl *model.RubricTemplate) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(tpl).Error
	})
}

// FindTemplateByID loads the full aggregate: criteria ordered by position,
// each with its ratings ordered by position. Deactivated templates are still
// resolvable so historical assessments keep their meaning.
func (r *RubricRepository) FindTemplateByID(id string) (*model.RubricTemplate, error) {
	var tpl model.RubricTemplate
	err := r.DB.
		Preload("Criteria", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc")
		}).
		Preload("Criteria.Ratings", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc")
		}).
		First(&tpl, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrRubricNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *RubricRepository) FindTemplateByCanvasID(canvasID string) (*model.RubricTemplate, error) {
	var tpl model.RubricTemplate
	err := r.DB.First(&tpl, "canvas_id = ?", canvasID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrRubricNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *RubricRepository) ListTemplates(userID string) ([]model.RubricTemplate, error) {
	query := r.DB.Where("is_active = ?", true)
	if userID != "" {
		query = query.Where("created_by = ?", userID)
	}
	var templates []model.RubricTemplate
	err := query.Order("updated_at desc").Find(&templates).Error
	return templates, err
}

// LibraryRow carries usage counts alongside the template for the library view.
type LibraryRow struct {
	model.RubricTemplate
	AssignmentCount int64 `json:"assignmentCount"`
	AssessmentCount int64 `json:"assessmentCount"`
}

func (r *RubricRepository) Library(userID string) ([]LibraryRow, error) {
	query := r.DB.Table("rubric_templates rt").
		Select("rt.*, " +
			"(SELECT COUNT(*) FROM assignments a WHERE a.rubric_template_id = rt.id) as assignment_count, " +
			"(SELECT COUNT(*) FROM rubric_assessments ra WHERE ra.rubric_template_id = rt.id) as assessment_count").
		Where("rt.is_active = ? AND rt.deleted_at IS NULL", true)
	if userID != "" {
		query = query.Where("rt.created_by = ?", userID)
	}
	var rows []LibraryRow
	err := query.Order("rt.updated_at desc").Scan(&rows).Error
	return rows, err
}

// TemplateUsageCount reports how many assessments reference the template.
func (r *RubricRepository) TemplateUsageCount(id string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.RubricAssessment{}).
		Where("rubric_template_id = ?", id).Count(&count).Error
	return count, err
}

func (r *RubricRepository) UpdateTemplate(tpl *model.RubricTemplate) error {
	return r.DB.Model(&model.RubricTemplate{}).
		Where("id = ?", tpl.ID).
		Updates(map[string]interface{}{
			"name":             tpl.Name,
			"description":      tpl.Description,
			"points_possible":  tpl.PointsPossible,
			"last_modified_by": tpl.LastModifiedBy,
			"version":          tpl.Version,
		}).Error
}

func (r *RubricRepository) Deactivate(id string) error {
	return r.DB.Model(&model.RubricTemplate{}).
		Where("id = ?", id).Update("is_active", false).Error
}

func (r *RubricRepository) SetCanvasID(id, canvasID string) error {
	return r.DB.Model(&model.RubricTemplate{}).
		Where("id = ?", id).Update("canvas_id", canvasID).Error
}

// RepointAssignments moves every assignment and mapping that referenced the
// old template onto its replacement.
func (r *RubricRepository) RepointAssignments(oldTemplateID, newTemplateID string) error {
	if err := r.DB.Model(&model.Assignment{}).
		Where("rubric_template_id = ?", oldTemplateID).
		Update("rubric_template_id", newTemplateID).Error; err != nil {
		return err
	}
	return r.DB.Model(&model.AssignmentRubric{}).
		Where("rubric_template_id = ?", oldTemplateID).
		Update("rubric_template_id", newTemplateID).Error
}

func (r *RubricRepository) UpsertAssignmentMapping(assignmentID, rubricTemplateID, courseID string) error {
	var existing model.AssignmentRubric
	err := r.DB.Where("assignment_id = ?", assignmentID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.DB.Create(&model.AssignmentRubric{
			AssignmentID:     assignmentID,
			RubricTemplateID: rubricTemplateID,
			CourseID:         courseID,
		}).Error
	}
	if err != nil {
		return err
	}
	existing.RubricTemplateID = rubricTemplateID
	existing.CourseID = courseID
	return r.DB.Save(&existing).Error
}

// CourseCanvasIDForTemplate resolves the Canvas course a template is mapped
// to through its assignment mappings. A template mapped to no assignment has
// no upload destination.
func (r *RubricRepository) CourseCanvasIDForTemplate(templateID string) (string, error) {
	var canvasID string
	err := r.DB.Table("assignment_rubrics ar").
		Select("c.canvas_id").
		Joins("JOIN courses c ON ar.course_id = c.id").
		Where("ar.rubric_template_id = ? AND ar.deleted_at IS NULL", templateID).
		Limit(1).
		Scan(&canvasID).Error
	if err != nil {
		return "", err
	}
	if canvasID == "" {
		return "", fmt.Errorf("rubric %s is not mapped to any course", templateID)
	}
	return canvasID, nil
}

func (r *RubricRepository) FindCriterion(id string) (*model.RubricCriterion, error) {
	var criterion model.RubricCriterion
	err := r.DB.
		Preload("Ratings", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc")
		}).
		First(&criterion, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCriterionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &criterion, nil
}

func (r *RubricRepository) CreateCriterion(criterion *model.RubricCriterion) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(criterion).Error
	})
}

func (r *RubricRepository) UpdateCriterion(criterion *model.RubricCriterion) error {
	return r.DB.Model(&model.RubricCriterion{}).
		Where("id = ?", criterion.ID).
		Updates(map[string]interface{}{
			"description":      criterion.Description,
			"long_description": criterion.LongDescription,
			"points":           criterion.Points,
		}).Error
}

// ReplaceRatings swaps a criterion's rating set wholesale, re-numbering
// positions from zero.
func (r *RubricRepository) ReplaceRatings(criterionID string, ratings []model.RubricRating) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("criterion_id = ?", criterionID).
			Delete(&model.RubricRating{}).Error; err != nil {
			return err
		}
		for i := range ratings {
			ratings[i].CriterionID = criterionID
			ratings[i].Position = i
		}
		if len(ratings) > 0 {
			if err := tx.Create(&ratings).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CriterionUsageCount reports how many criterion assessments reference it.
func (r *RubricRepository) CriterionUsageCount(id string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.CriterionAssessment{}).
		Where("criterion_id = ?", id).Count(&count).Error
	return count, err
}

// DeleteCriterion removes the criterion and its ratings. Callers are
// responsible for the usage guard.
func (r *RubricRepository) DeleteCriterion(id string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("criterion_id = ?", id).
			Unscoped().Delete(&model.RubricRating{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&model.RubricCriterion{}, "id = ?", id).Error
	})
}

func (r *RubricRepository) MaxCriterionPosition(rubricTemplateID string) (int, error) {
	var maxPos *int
	err := r.DB.Model(&model.RubricCriterion{}).
		Where("rubric_template_id = ?", rubricTemplateID).
		Select("MAX(position)").Scan(&maxPos).Error
	if err != nil {
		return -1, err
	}
	if maxPos == nil {
		return -1, nil
	}
	return *maxPos, nil
}

// UpdatePositions rewrites criterion positions to match the given order,
// contiguous from zero.
func (r *RubricRepository) UpdatePositions(rubricTemplateID string, orderedIDs []string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		for i, id := range orderedIDs {
			res := tx.Model(&model.RubricCriterion{}).
				Where("id = ? AND rubric_template_id = ?", id, rubricTemplateID).
				Update("position", i)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return util.ErrCriterionNotFound
			}
		}
		return nil
	})
}
