package service

import (
	"fmt"
	"math"

	"palette_backend/internal/model"
	"palette_backend/internal/repository"
	"palette_backend/internal/util"
	"palette_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RubricService owns rubric CRUD with copy-on-write semantics: a template
// referenced by any assessment is never edited in place, so an assessment's
// interpretation never changes after creation.
type RubricService struct {
	Repo    *repository.RubricRepository
	Courses *repository.CourseRepository
	DB      *gorm.DB
}

func NewRubricService(repo *repository.RubricRepository, courses *repository.CourseRepository, db *gorm.DB) *RubricService {
	return &RubricService{Repo: repo, Courses: courses, DB: db}
}

// AttachToAssignment points an assignment at a template and records the
// mapping used for Canvas uploads. Reattaching replaces the previous mapping.
func (s *RubricService) AttachToAssignment(assignmentID, rubricID string) error {
	if _, err := s.Repo.FindTemplateByID(rubricID); err != nil {
		return err
	}
	assignment, err := s.Courses.FindAssignmentByID(assignmentID)
	if err != nil {
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Assignment{}).
			Where("id = ?", assignmentID).
			Update("rubric_template_id", rubricID).Error; err != nil {
			return err
		}
		return s.Repo.Tx(tx).UpsertAssignmentMapping(assignmentID, rubricID, assignment.CourseID)
	})
}

type RatingReq struct {
	Description     string  `json:"description" binding:"required"`
	LongDescription string  `json:"longDescription"`
	Points          float64 `json:"points"`
}

type CriterionReq struct {
	Description     string      `json:"description" binding:"required"`
	LongDescription string      `json:"longDescription"`
	Points          float64     `json:"points"`
	Ratings         []RatingReq `json:"ratings"`
}

type RubricReq struct {
	Name           string         `json:"name" binding:"required"`
	Description    string         `json:"description"`
	PointsPossible float64        `json:"pointsPossible"`
	Criteria       []CriterionReq `json:"criteria"`
}

// RubricChanges carries a partial edit; nil fields are left untouched.
type RubricChanges struct {
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
	PointsPossible *float64 `json:"pointsPossible"`
}

// CreateRubric inserts the template with its criteria and ratings in one
// transaction. An empty criteria list gets the built-in default set; a
// criterion without ratings gets the default rating ladder. The finished
// template never has zero criteria.
func (s *RubricService) CreateRubric(req RubricReq, userID string) (*model.RubricTemplate, error) {
	criteria := req.Criteria
	if len(criteria) == 0 {
		criteria = defaultCriteria()
	}

	tpl := &model.RubricTemplate{
		Name:           req.Name,
		Description:    req.Description,
		PointsPossible: req.PointsPossible,
		CreatedBy:      userID,
		LastModifiedBy: userID,
		IsActive:       true,
		Version:        1,
	}
	for i, c := range criteria {
		tpl.Criteria = append(tpl.Criteria, buildCriterion(c, i))
	}

	if err := s.Repo.CreateTemplateTree(tpl); err != nil {
		return nil, err
	}

	if issues := validateTemplate(tpl); len(issues) > 0 {
		logger.Log.Warn("rubric created with validation issues",
			zap.String("rubricId", tpl.ID), zap.Strings("issues", issues))
	}

	logger.Log.Info("created rubric", zap.String("rubricId", tpl.ID), zap.String("name", tpl.Name))
	return s.Repo.FindTemplateByID(tpl.ID)
}

// EditRubric applies changes with copy-on-write: an unused template is
// mutated in place with a version bump; a template backing any assessment is
// deactivated and deep-copied, the changes land on the copy, and every
// assignment mapping is repointed to it. The original rows stay untouched.
// Returns the id of the template now carrying the changes.
func (s *RubricService) EditRubric(rubricID string, changes RubricChanges, userID string) (string, error) {
	var resultID string
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.Repo.Tx(tx)

		tpl, err := repo.FindTemplateByID(rubricID)
		if err != nil {
			return err
		}

		inUse, err := repo.TemplateUsageCount(rubricID)
		if err != nil {
			return err
		}

		if inUse == 0 {
			applyChanges(tpl, changes, userID)
			tpl.Version++
			if err := repo.UpdateTemplate(tpl); err != nil {
				return err
			}
			resultID = rubricID
			return nil
		}

		clone, err := cloneForEdit(tx, repo, tpl, userID, func(c *model.RubricTemplate) {
			applyChanges(c, changes, userID)
		})
		if err != nil {
			return err
		}
		resultID = clone.ID
		return nil
	})
	return resultID, err
}

// cloneForEdit is the shared copy-on-write step: deactivate the template,
// insert a deep copy with a bumped version, repoint every assignment mapping.
// mutate runs on the copy before it is inserted, so the edit only ever lands
// on rows no assessment references yet.
func cloneForEdit(tx *gorm.DB, repo *repository.RubricRepository, tpl *model.RubricTemplate, userID string, mutate func(*model.RubricTemplate)) (*model.RubricTemplate, error) {
	if err := repo.Deactivate(tpl.ID); err != nil {
		return nil, err
	}

	clone := cloneTemplateTree(tpl, tpl.Name, userID)
	clone.Version = tpl.Version + 1
	if mutate != nil {
		mutate(clone)
	}
	if err := tx.Create(clone).Error; err != nil {
		return nil, err
	}

	if err := repo.RepointAssignments(tpl.ID, clone.ID); err != nil {
		return nil, err
	}
	logger.Log.Info("created rubric version",
		zap.String("originalId", tpl.ID), zap.String("newId", clone.ID))
	return clone, nil
}

// CopyRubric deep-copies a template with its criteria and ratings into fresh
// ids. Canvas ids are not carried over: the copy is unknown upstream.
func (s *RubricService) CopyRubric(sourceID, newName, userID string) (*model.RubricTemplate, error) {
	src, err := s.Repo.FindTemplateByID(sourceID)
	if err != nil {
		return nil, err
	}
	if newName == "" {
		newName = fmt.Sprintf("%s (Copy)", src.Name)
	}

	clone := cloneTemplateTree(src, newName, userID)
	if err := s.Repo.CreateTemplateTree(clone); err != nil {
		return nil, err
	}
	logger.Log.Info("copied rubric",
		zap.String("sourceId", sourceID), zap.String("newId", clone.ID))
	return s.Repo.FindTemplateByID(clone.ID)
}

func (s *RubricService) GetRubric(id string) (*model.RubricTemplate, error) {
	return s.Repo.FindTemplateByID(id)
}

func (s *RubricService) ListRubrics(userID string) ([]model.RubricTemplate, error) {
	return s.Repo.ListTemplates(userID)
}

func (s *RubricService) Library(userID string) ([]repository.LibraryRow, error) {
	return s.Repo.Library(userID)
}

// AddCriterion appends at the next position. A template backing any
// assessment gets the criterion on a new version via the same deactivate and
// copy path as EditRubric; the returned criterion belongs to whichever
// template now carries it.
func (s *RubricService) AddCriterion(rubricID string, req CriterionReq, userID string) (*model.RubricCriterion, error) {
	tpl, err := s.Repo.FindTemplateByID(rubricID)
	if err != nil {
		return nil, err
	}
	inUse, err := s.Repo.TemplateUsageCount(rubricID)
	if err != nil {
		return nil, err
	}

	if inUse == 0 {
		maxPos, err := s.Repo.MaxCriterionPosition(rubricID)
		if err != nil {
			return nil, err
		}
		criterion := buildCriterion(req, maxPos+1)
		criterion.RubricTemplateID = rubricID
		if err := s.Repo.CreateCriterion(&criterion); err != nil {
			return nil, err
		}
		return s.Repo.FindCriterion(criterion.ID)
	}

	nextPos := 0
	for _, c := range tpl.Criteria {
		if c.Position >= nextPos {
			nextPos = c.Position + 1
		}
	}

	var addedID string
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		clone, err := cloneForEdit(tx, s.Repo.Tx(tx), tpl, userID, func(c *model.RubricTemplate) {
			c.Criteria = append(c.Criteria, buildCriterion(req, nextPos))
		})
		if err != nil {
			return err
		}
		addedID = clone.Criteria[len(clone.Criteria)-1].ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Repo.FindCriterion(addedID)
}

type CriterionChanges struct {
	Description     *string      `json:"description"`
	LongDescription *string      `json:"longDescription"`
	Points          *float64     `json:"points"`
	Ratings         *[]RatingReq `json:"ratings"`
}

// UpdateCriterion patches a criterion's fields, optionally replacing its
// rating set. Rows an assessment resolves against are never rewritten: when
// the owning template is in use, the whole template is versioned through the
// copy path and the edit lands on the copy's criterion. The returned
// criterion is the one carrying the edit.
func (s *RubricService) UpdateCriterion(criterionID string, changes CriterionChanges, userID string) (*model.RubricCriterion, error) {
	criterion, err := s.Repo.FindCriterion(criterionID)
	if err != nil {
		return nil, err
	}
	inUse, err := s.Repo.TemplateUsageCount(criterion.RubricTemplateID)
	if err != nil {
		return nil, err
	}

	if inUse == 0 {
		if changes.Description != nil {
			criterion.Description = *changes.Description
		}
		if changes.LongDescription != nil {
			criterion.LongDescription = *changes.LongDescription
		}
		if changes.Points != nil {
			criterion.Points = *changes.Points
		}
		if err := s.Repo.UpdateCriterion(criterion); err != nil {
			return nil, err
		}

		if changes.Ratings != nil {
			ratings := make([]model.RubricRating, 0, len(*changes.Ratings))
			for _, r := range *changes.Ratings {
				ratings = append(ratings, model.RubricRating{
					Description:     r.Description,
					LongDescription: r.LongDescription,
					Points:          r.Points,
				})
			}
			if err := s.Repo.ReplaceRatings(criterionID, ratings); err != nil {
				return nil, err
			}
		}
		return s.Repo.FindCriterion(criterionID)
	}

	tpl, err := s.Repo.FindTemplateByID(criterion.RubricTemplateID)
	if err != nil {
		return nil, err
	}

	var editedID string
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		clone, err := cloneForEdit(tx, s.Repo.Tx(tx), tpl, userID, func(c *model.RubricTemplate) {
			for i := range c.Criteria {
				if c.Criteria[i].Position == criterion.Position {
					applyCriterionChanges(&c.Criteria[i], changes)
					break
				}
			}
		})
		if err != nil {
			return err
		}
		for i := range clone.Criteria {
			if clone.Criteria[i].Position == criterion.Position {
				editedID = clone.Criteria[i].ID
				return nil
			}
		}
		return util.ErrCriterionNotFound
	})
	if err != nil {
		return nil, err
	}
	return s.Repo.FindCriterion(editedID)
}

func applyCriterionChanges(c *model.RubricCriterion, changes CriterionChanges) {
	if changes.Description != nil {
		c.Description = *changes.Description
	}
	if changes.LongDescription != nil {
		c.LongDescription = *changes.LongDescription
	}
	if changes.Points != nil {
		c.Points = *changes.Points
	}
	if changes.Ratings != nil {
		c.Ratings = nil
		for i, r := range *changes.Ratings {
			c.Ratings = append(c.Ratings, model.RubricRating{
				Description:     r.Description,
				LongDescription: r.LongDescription,
				Points:          r.Points,
				Position:        i,
			})
		}
	}
}

// DeleteCriterion is the one rubric mutation that is not copy-on-write: it is
// refused outright when any assessment references the criterion.
func (s *RubricService) DeleteCriterion(criterionID string) error {
	if _, err := s.Repo.FindCriterion(criterionID); err != nil {
		return err
	}
	inUse, err := s.Repo.CriterionUsageCount(criterionID)
	if err != nil {
		return err
	}
	if inUse > 0 {
		return util.ErrCriterionInUse
	}
	if err := s.Repo.DeleteCriterion(criterionID); err != nil {
		return err
	}
	logger.Log.Info("deleted criterion", zap.String("criterionId", criterionID))
	return nil
}

// ReorderCriteria rewrites positions to match the given order, contiguous
// from zero. The order must name every criterion of the rubric exactly once.
func (s *RubricService) ReorderCriteria(rubricID string, orderedIDs []string) error {
	tpl, err := s.Repo.FindTemplateByID(rubricID)
	if err != nil {
		return err
	}
	if len(orderedIDs) != len(tpl.Criteria) {
		return util.NewValidationError(
			fmt.Sprintf("order lists %d criteria, rubric has %d", len(orderedIDs), len(tpl.Criteria)))
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if seen[id] {
			return util.NewValidationError(fmt.Sprintf("duplicate criterion id %s in order", id))
		}
		seen[id] = true
	}
	return s.Repo.UpdatePositions(rubricID, orderedIDs)
}

// ValidateRubric reports advisory issues; it never blocks a write. Duplicate
// rating point values within one criterion are reported, not rejected.
func (s *RubricService) ValidateRubric(rubricID string) ([]string, error) {
	tpl, err := s.Repo.FindTemplateByID(rubricID)
	if err != nil {
		return nil, err
	}
	return validateTemplate(tpl), nil
}

// ImportCanvasRubric persists a downloaded rubric unless one with the same
// normalized Canvas id already exists locally; the existing template wins.
func (s *RubricService) ImportCanvasRubric(tpl *model.RubricTemplate) (*model.RubricTemplate, error) {
	if tpl.CanvasID != "" {
		existing, err := s.Repo.FindTemplateByCanvasID(tpl.CanvasID)
		if err == nil {
			logger.Log.Debug("rubric already imported",
				zap.String("canvasId", tpl.CanvasID), zap.String("localId", existing.ID))
			return s.Repo.FindTemplateByID(existing.ID)
		}
		if err != util.ErrRubricNotFound {
			return nil, err
		}
	}
	if err := s.Repo.CreateTemplateTree(tpl); err != nil {
		return nil, err
	}
	return s.Repo.FindTemplateByID(tpl.ID)
}

// RubricExport is the versioned interchange shape for rubric sharing.
type RubricExport struct {
	Version string    `json:"version"`
	Rubric  RubricReq `json:"rubric"`
}

func (s *RubricService) ExportRubric(rubricID string) (*RubricExport, error) {
	tpl, err := s.Repo.FindTemplateByID(rubricID)
	if err != nil {
		return nil, err
	}

	out := RubricReq{
		Name:           tpl.Name,
		Description:    tpl.Description,
		PointsPossible: tpl.PointsPossible,
	}
	for _, c := range tpl.Criteria {
		cr := CriterionReq{
			Description:     c.Description,
			LongDescription: c.LongDescription,
			Points:          c.Points,
		}
		for _, r := range c.Ratings {
			cr.Ratings = append(cr.Ratings, RatingReq{
				Description:     r.Description,
				LongDescription: r.LongDescription,
				Points:          r.Points,
			})
		}
		out.Criteria = append(out.Criteria, cr)
	}
	return &RubricExport{Version: "1.0", Rubric: out}, nil
}

func (s *RubricService) ImportRubric(export *RubricExport, userID string) (*model.RubricTemplate, error) {
	if export == nil || export.Rubric.Name == "" {
		return nil, util.NewValidationError("invalid import data format")
	}
	return s.CreateRubric(export.Rubric, userID)
}

// cloneTemplateTree is the single clone walk over the rubric aggregate. Ids
// are blanked so fresh ones are generated on insert and foreign keys are
// filled from the association; Canvas ids are deliberately dropped.
func cloneTemplateTree(src *model.RubricTemplate, newName, userID string) *model.RubricTemplate {
	clone := &model.RubricTemplate{
		Name:           newName,
		Description:    src.Description,
		PointsPossible: src.PointsPossible,
		CreatedBy:      userID,
		LastModifiedBy: userID,
		IsActive:       true,
		Version:        src.Version,
	}
	for _, c := range src.Criteria {
		mc := model.RubricCriterion{
			Description:     c.Description,
			LongDescription: c.LongDescription,
			Points:          c.Points,
			Position:        c.Position,
		}
		for _, r := range c.Ratings {
			mc.Ratings = append(mc.Ratings, model.RubricRating{
				Description:     r.Description,
				LongDescription: r.LongDescription,
				Points:          r.Points,
				Position:        r.Position,
			})
		}
		clone.Criteria = append(clone.Criteria, mc)
	}
	return clone
}

func applyChanges(tpl *model.RubricTemplate, changes RubricChanges, userID string) {
	if changes.Name != nil {
		tpl.Name = *changes.Name
	}
	if changes.Description != nil {
		tpl.Description = *changes.Description
	}
	if changes.PointsPossible != nil {
		tpl.PointsPossible = *changes.PointsPossible
	}
	tpl.LastModifiedBy = userID
}

func buildCriterion(req CriterionReq, position int) model.RubricCriterion {
	criterion := model.RubricCriterion{
		Description:     req.Description,
		LongDescription: req.LongDescription,
		Points:          req.Points,
		Position:        position,
	}

	ratings := req.Ratings
	if len(ratings) == 0 {
		maxPoints := req.Points
		if maxPoints <= 0 {
			maxPoints = 10
		}
		ratings = defaultRatings(maxPoints)
	}
	for i, r := range ratings {
		criterion.Ratings = append(criterion.Ratings, model.RubricRating{
			Description:     r.Description,
			LongDescription: r.LongDescription,
			Points:          r.Points,
			Position:        i,
		})
	}
	return criterion
}

func defaultCriteria() []CriterionReq {
	return []CriterionReq{
		{
			Description:     "Quality of Work",
			LongDescription: "Overall quality and completeness of the submission",
			Points:          10,
		},
		{
			Description:     "Following Instructions",
			LongDescription: "How well the submission follows the assignment requirements",
			Points:          10,
		},
	}
}

func defaultRatings(maxPoints float64) []RatingReq {
	return []RatingReq{
		{Description: "Excellent", LongDescription: "Exceeds expectations", Points: maxPoints},
		{Description: "Good", LongDescription: "Meets expectations", Points: math.Round(maxPoints * 0.8)},
		{Description: "Satisfactory", LongDescription: "Mostly meets expectations", Points: math.Round(maxPoints * 0.6)},
		{Description: "Needs Improvement", LongDescription: "Below expectations", Points: math.Round(maxPoints * 0.4)},
		{Description: "Unsatisfactory", LongDescription: "Does not meet expectations", Points: 0},
	}
}

func validateTemplate(tpl *model.RubricTemplate) []string {
	var issues []string

	if tpl.Name == "" {
		issues = append(issues, "rubric name is required")
	}
	if len(tpl.Criteria) == 0 {
		issues = append(issues, "rubric must have at least one criterion")
	}
	for _, criterion := range tpl.Criteria {
		if criterion.Description == "" {
			issues = append(issues, fmt.Sprintf("criterion at position %d missing description", criterion.Position))
		}
		if len(criterion.Ratings) == 0 {
			issues = append(issues, fmt.Sprintf("criterion %q has no ratings", criterion.Description))
			continue
		}
		seen := make(map[float64]bool, len(criterion.Ratings))
		dup := false
		for _, rating := range criterion.Ratings {
			if seen[rating.Points] {
				dup = true
			}
			seen[rating.Points] = true
		}
		if dup {
			issues = append(issues, fmt.Sprintf("criterion %q has duplicate rating point values", criterion.Description))
		}
	}
	return issues
}
