package repository

import (
	"errors"
	"time"

	"palette_backend/internal/model"
	"palette_backend/internal/util"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) Tx(tx *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: tx}
}

func (r *AssessmentRepository) FindByID(id string) (*model.RubricAssessment, error) {
	var assessment model.RubricAssessment
	err := r.DB.Preload("CriterionAssessments").First(&assessment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssessmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &assessment, nil
}

func (r *AssessmentRepository) FindBySubmission(submissionID string) (*model.RubricAssessment, error) {
	var assessment model.RubricAssessment
	err := r.DB.Preload("CriterionAssessments").
		First(&assessment, "submission_id = ?", submissionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssessmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &assessment, nil
}

func (r *AssessmentRepository) Create(assessment *model.RubricAssessment) error {
	return r.DB.Create(assessment).Error
}

func (r *AssessmentRepository) UpdateScore(id string, score float64) error {
	return r.DB.Model(&model.RubricAssessment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"score": score, "is_synced": false}).Error
}

// UpsertCriterionAssessment replaces the grade for one criterion within an
// assessment; regrading is idempotent per criterion, never additive.
func (r *AssessmentRepository) UpsertCriterionAssessment(ca *model.CriterionAssessment) error {
	var existing model.CriterionAssessment
	err := r.DB.Where("assessment_id = ? AND criterion_id = ?", ca.AssessmentID, ca.CriterionID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.DB.Create(ca).Error
	}
	if err != nil {
		return err
	}
	ca.UUIDBase = existing.UUIDBase
	return r.DB.Save(ca).Error
}

func (r *AssessmentRepository) MarkSynced(id string, at time.Time) error {
	return r.DB.Model(&model.RubricAssessment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_synced": true, "last_synced": &at}).Error
}

// Comments

// CommentIDs lists the ids of the comments attached to one assessment's
// submission, for callers that need to retire references before a delete.
func (r *AssessmentRepository) CommentIDs(submissionID, assessmentID string) ([]string, error) {
	var ids []string
	err := r.DB.Model(&model.Comment{}).
		Where("submission_id = ? AND assessment_id = ?", submissionID, assessmentID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *AssessmentRepository) DeleteComments(submissionID, assessmentID string) error {
	return r.DB.Where("submission_id = ? AND assessment_id = ?", submissionID, assessmentID).
		Unscoped().Delete(&model.Comment{}).Error
}

func (r *AssessmentRepository) CreateComment(comment *model.Comment) error {
	return r.DB.Create(comment).Error
}

func (r *AssessmentRepository) FindCommentByID(id string) (*model.Comment, error) {
	var comment model.Comment
	err := r.DB.First(&comment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *AssessmentRepository) CommentsBySubmission(submissionID, commentType string) ([]model.Comment, error) {
	query := r.DB.Where("submission_id = ?", submissionID)
	if commentType != "" {
		query = query.Where("comment_type = ?", commentType)
	}
	var comments []model.Comment
	err := query.Order("created_at asc").Find(&comments).Error
	return comments, err
}

func (r *AssessmentRepository) UnsyncedComments(submissionID string) ([]model.Comment, error) {
	var comments []model.Comment
	err := r.DB.Where("submission_id = ? AND is_synced = ?", submissionID, false).
		Order("created_at asc").Find(&comments).Error
	return comments, err
}

func (r *AssessmentRepository) MarkCommentSynced(id string, at time.Time) error {
	return r.DB.Model(&model.Comment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_synced": true, "last_synced": &at}).Error
}
