package service

import (
	"fmt"
	"math"
	"sync"
	"time"

	"palette_backend/internal/model"
	"palette_backend/internal/repository"
	"palette_backend/internal/util"
	"palette_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GradingService runs grading sessions against the local store. Every grade
// commits locally in one transaction and lands in the sync outbox; nothing
// here ever waits on Canvas.
type GradingService struct {
	Assessments *repository.AssessmentRepository
	Courses     *repository.CourseRepository
	RubricRepo  *repository.RubricRepository
	Analytics   *repository.AnalyticsRepository
	Queue       *repository.SyncQueueRepository
	DB          *gorm.DB

	unsavedMu  sync.Mutex
	unsaved    map[string]unsavedEntry
	unsavedRev uint64

	autoMu   sync.Mutex
	autoStop chan struct{}
}

func NewGradingService(
	assessments *repository.AssessmentRepository,
	courses *repository.CourseRepository,
	rubrics *repository.RubricRepository,
	analytics *repository.AnalyticsRepository,
	queue *repository.SyncQueueRepository,
	db *gorm.DB,
) *GradingService {
	return &GradingService{
		Assessments: assessments,
		Courses:     courses,
		RubricRepo:  rubrics,
		Analytics:   analytics,
		Queue:       queue,
		DB:          db,
		unsaved:     make(map[string]unsavedEntry),
	}
}

// GradingSession is the working set for grading one assignment: the rubric
// version in effect and every submission with its current grading state.
type GradingSession struct {
	SessionID   string                 `json:"sessionId"`
	Assignment  *model.Assignment      `json:"assignment"`
	Rubric      *model.RubricTemplate  `json:"rubric"`
	Submissions []repository.GradingRow `json:"submissions"`
	StartedAt   time.Time              `json:"startedAt"`
}

type CriterionGradeReq struct {
	CriterionID string  `json:"criterionId" binding:"required"`
	RatingID    *string `json:"ratingId"`
	Points      float64 `json:"points"`
	Comments    string  `json:"comments"`
}

type CommentReq struct {
	CommentType string `json:"commentType"`
	Content     string `json:"content" binding:"required"`
}

type GradeSubmissionReq struct {
	SubmissionID    string              `json:"submissionId" binding:"required"`
	CriterionGrades []CriterionGradeReq `json:"criterionGrades" binding:"required"`
	Comments        []CommentReq        `json:"comments"`
	GraderID        string              `json:"graderId"`
}

// StartGradingSession fails when the assignment has no rubric attached:
// grading without a rubric is undefined.
func (s *GradingService) StartGradingSession(assignmentID string) (*GradingSession, error) {
	assignment, err := s.Courses.FindAssignmentByID(assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.RubricTemplateID == nil {
		return nil, util.ErrNoRubricAttached
	}

	rubric, err := s.RubricRepo.FindTemplateByID(*assignment.RubricTemplateID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Courses.GradingRows(assignmentID)
	if err != nil {
		return nil, err
	}

	session := &GradingSession{
		SessionID:   model.GenerateUUID(),
		Assignment:  assignment,
		Rubric:      rubric,
		Submissions: rows,
		StartedAt:   time.Now(),
	}
	logger.Log.Info("started grading session",
		zap.String("sessionId", session.SessionID),
		zap.String("assignmentId", assignmentID),
		zap.Int("submissions", len(rows)))
	return session, nil
}

// GradeSubmission validates the grades against the rubric and commits them
// atomically: assessment row, per-criterion rows, replaced comments, total
// score and outbox entries all land together or not at all. Regrading a
// criterion replaces its previous grade.
func (s *GradingService) GradeSubmission(req GradeSubmissionReq) (*model.RubricAssessment, error) {
	return s.commitGrade(req, s.bufferRev(req.SubmissionID))
}

// commitGrade does the actual grading write. rev pins which buffered edit the
// commit supersedes: the buffer entry is only dropped if nothing newer landed
// for the submission since rev was read.
func (s *GradingService) commitGrade(req GradeSubmissionReq, rev uint64) (*model.RubricAssessment, error) {
	submission, err := s.Courses.FindSubmissionByID(req.SubmissionID)
	if err != nil {
		return nil, err
	}
	assignment, err := s.Courses.FindAssignmentByID(submission.AssignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.RubricTemplateID == nil {
		return nil, util.ErrNoRubricAttached
	}
	rubric, err := s.RubricRepo.FindTemplateByID(*assignment.RubricTemplateID)
	if err != nil {
		return nil, err
	}

	if issues := validateGrades(rubric, req.CriterionGrades); len(issues) > 0 {
		return nil, &util.ValidationError{Issues: issues}
	}

	var assessmentID string
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		assessments := s.Assessments.Tx(tx)
		queue := s.Queue.Tx(tx)

		assessment, err := assessments.FindBySubmission(req.SubmissionID)
		if err == util.ErrAssessmentNotFound {
			assessment = &model.RubricAssessment{
				SubmissionID:     req.SubmissionID,
				RubricTemplateID: rubric.ID,
				AssessorID:       req.GraderID,
			}
			if err := assessments.Create(assessment); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		assessmentID = assessment.ID

		total := 0.0
		for _, grade := range req.CriterionGrades {
			total += grade.Points
			err := assessments.UpsertCriterionAssessment(&model.CriterionAssessment{
				AssessmentID: assessment.ID,
				CriterionID:  grade.CriterionID,
				RatingID:     grade.RatingID,
				Points:       grade.Points,
				Comments:     grade.Comments,
			})
			if err != nil {
				return err
			}
		}
		if err := assessments.UpdateScore(assessment.ID, total); err != nil {
			return err
		}

		// The deleted comments' unfinished outbox rows can never succeed
		// once the rows they point at are gone, so retire them here rather
		// than letting them pile up as failures.
		staleComments, err := assessments.CommentIDs(req.SubmissionID, assessment.ID)
		if err != nil {
			return err
		}
		if _, err := queue.RetireEntities(model.EntityComment, staleComments); err != nil {
			return err
		}
		if err := assessments.DeleteComments(req.SubmissionID, assessment.ID); err != nil {
			return err
		}
		for _, c := range req.Comments {
			commentType := c.CommentType
			if commentType == "" {
				commentType = model.CommentGeneral
			}
			comment := &model.Comment{
				SubmissionID: req.SubmissionID,
				AssessmentID: &assessment.ID,
				CommentType:  commentType,
				Content:      c.Content,
				AuthorID:     req.GraderID,
			}
			if err := assessments.CreateComment(comment); err != nil {
				return err
			}
			if _, err := queue.Enqueue(model.EntityComment, comment.ID, model.OpCreate); err != nil {
				return err
			}
		}

		_, err = queue.Enqueue(model.EntityAssessment, assessment.ID, model.OpUpdate)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.clearUnsavedAt(req.SubmissionID, rev)
	logger.Log.Info("graded submission",
		zap.String("submissionId", req.SubmissionID),
		zap.String("assessmentId", assessmentID))
	return s.Assessments.FindByID(assessmentID)
}

func validateGrades(rubric *model.RubricTemplate, grades []CriterionGradeReq) []string {
	criteria := make(map[string]*model.RubricCriterion, len(rubric.Criteria))
	for i := range rubric.Criteria {
		criteria[rubric.Criteria[i].ID] = &rubric.Criteria[i]
	}

	var issues []string
	for _, grade := range grades {
		criterion, ok := criteria[grade.CriterionID]
		if !ok {
			issues = append(issues, fmt.Sprintf("criterion %s does not belong to rubric %s", grade.CriterionID, rubric.ID))
			continue
		}
		if grade.Points < 0 {
			issues = append(issues, fmt.Sprintf("criterion %q: points must not be negative", criterion.Description))
		}
		if max := criterion.MaxRatingPoints(); grade.Points > max {
			issues = append(issues, fmt.Sprintf("criterion %q: %.1f points exceeds maximum %.1f", criterion.Description, grade.Points, max))
		}
		if grade.RatingID != nil {
			found := false
			for _, rating := range criterion.Ratings {
				if rating.ID == *grade.RatingID {
					found = true
					break
				}
			}
			if !found {
				issues = append(issues, fmt.Sprintf("rating %s does not belong to criterion %q", *grade.RatingID, criterion.Description))
			}
		}
	}
	return issues
}

// SubmissionGradingView is one submission with everything a grader needs.
type SubmissionGradingView struct {
	Submission *model.Submission       `json:"submission"`
	Assessment *model.RubricAssessment `json:"assessment,omitempty"`
	Comments   []model.Comment         `json:"comments"`
}

func (s *GradingService) GetSubmissionForGrading(submissionID string) (*SubmissionGradingView, error) {
	submission, err := s.Courses.FindSubmissionByID(submissionID)
	if err != nil {
		return nil, err
	}
	view := &SubmissionGradingView{Submission: submission}

	assessment, err := s.Assessments.FindBySubmission(submissionID)
	if err == nil {
		view.Assessment = assessment
	} else if err != util.ErrAssessmentNotFound {
		return nil, err
	}

	comments, err := s.Assessments.CommentsBySubmission(submissionID, "")
	if err != nil {
		return nil, err
	}
	view.Comments = comments
	return view, nil
}

// GradingProgress reports how much of an assignment is graded and what has
// not reached Canvas yet.
type GradingProgress struct {
	Total          int64                  `json:"total"`
	Graded         int64                  `json:"graded"`
	Remaining      int64                  `json:"remaining"`
	PercentGraded  float64                `json:"percentGraded"`
	UnsyncedCount  int                    `json:"unsyncedCount"`
	Unsynced       []repository.UnsyncedRow `json:"unsynced,omitempty"`
}

func (s *GradingService) GetGradingProgress(assignmentID string) (*GradingProgress, error) {
	counts, err := s.Analytics.ProgressCounts(assignmentID)
	if err != nil {
		return nil, err
	}
	unsynced, err := s.Analytics.UnsyncedSubmissions(assignmentID)
	if err != nil {
		return nil, err
	}

	progress := &GradingProgress{
		Total:         counts.TotalSubmissions,
		Graded:        counts.GradedSubmissions,
		Remaining:     counts.TotalSubmissions - counts.GradedSubmissions,
		UnsyncedCount: len(unsynced),
		Unsynced:      unsynced,
	}
	if counts.TotalSubmissions > 0 {
		progress.PercentGraded = math.Round(float64(counts.GradedSubmissions)/float64(counts.TotalSubmissions)*1000) / 10
	}
	return progress, nil
}

// BulkGradeResult summarizes a batch grading run; each submission succeeds
// or fails independently.
type BulkGradeResult struct {
	Graded int               `json:"graded"`
	Failed int               `json:"failed"`
	Errors map[string]string `json:"errors,omitempty"`
}

func (s *GradingService) BulkGrade(reqs []GradeSubmissionReq) *BulkGradeResult {
	result := &BulkGradeResult{Errors: make(map[string]string)}
	for _, req := range reqs {
		if _, err := s.GradeSubmission(req); err != nil {
			result.Failed++
			result.Errors[req.SubmissionID] = err.Error()
			continue
		}
		result.Graded++
	}
	if result.Failed == 0 {
		result.Errors = nil
	}
	return result
}

// GradingAnalytics aggregates scores for one assignment.
type GradingAnalytics struct {
	Count          int64                        `json:"count"`
	Mean           float64                      `json:"mean"`
	Min            float64                      `json:"min"`
	Max            float64                      `json:"max"`
	StdDev         float64                      `json:"stdDev"`
	Distribution   []repository.ScoreBucket     `json:"distribution"`
	CriterionStats []repository.CriterionStats  `json:"criterionStats"`
}

func (s *GradingService) GetGradingAnalytics(assignmentID string) (*GradingAnalytics, error) {
	stats, err := s.Analytics.ScoreStats(assignmentID)
	if err != nil {
		return nil, err
	}
	scores, err := s.Analytics.Scores(assignmentID)
	if err != nil {
		return nil, err
	}
	distribution, err := s.Analytics.ScoreDistribution(assignmentID)
	if err != nil {
		return nil, err
	}
	criterionStats, err := s.Analytics.CriterionStats(assignmentID)
	if err != nil {
		return nil, err
	}

	return &GradingAnalytics{
		Count:          stats.TotalGraded,
		Mean:           stats.MeanScore,
		Min:            stats.MinScore,
		Max:            stats.MaxScore,
		StdDev:         stdDev(scores, stats.MeanScore),
		Distribution:   distribution,
		CriterionStats: criterionStats,
	}, nil
}

func stdDev(scores []float64, mean float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	var sum float64
	for _, score := range scores {
		d := score - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(scores)))
}

// unsavedEntry versions each buffered edit so a commit only clears the exact
// edit it persisted; an edit buffered after the commit started survives.
type unsavedEntry struct {
	req GradeSubmissionReq
	rev uint64
}

// AddUnsavedChange buffers an in-progress grade keyed by submission. The
// buffer is process-local and intentionally not durable; durability starts
// at GradeSubmission.
func (s *GradingService) AddUnsavedChange(req GradeSubmissionReq) {
	s.unsavedMu.Lock()
	defer s.unsavedMu.Unlock()
	s.unsavedRev++
	s.unsaved[req.SubmissionID] = unsavedEntry{req: req, rev: s.unsavedRev}
}

func (s *GradingService) UnsavedCount() int {
	s.unsavedMu.Lock()
	defer s.unsavedMu.Unlock()
	return len(s.unsaved)
}

// bufferRev reports the revision of the submission's buffered edit, zero when
// none is buffered. Revisions start at one.
func (s *GradingService) bufferRev(submissionID string) uint64 {
	s.unsavedMu.Lock()
	defer s.unsavedMu.Unlock()
	return s.unsaved[submissionID].rev
}

// clearUnsavedAt drops the buffer entry only while it is still the revision
// the caller committed.
func (s *GradingService) clearUnsavedAt(submissionID string, rev uint64) {
	s.unsavedMu.Lock()
	defer s.unsavedMu.Unlock()
	if entry, ok := s.unsaved[submissionID]; ok && entry.rev == rev {
		delete(s.unsaved, submissionID)
	}
}

// FlushUnsaved commits every buffered grade. A grade that fails stays in the
// buffer for the next flush, as does any edit buffered while the flush ran.
func (s *GradingService) FlushUnsaved() (int, int) {
	s.unsavedMu.Lock()
	pending := make([]unsavedEntry, 0, len(s.unsaved))
	for _, entry := range s.unsaved {
		pending = append(pending, entry)
	}
	s.unsavedMu.Unlock()

	saved, failed := 0, 0
	for _, entry := range pending {
		if _, err := s.commitGrade(entry.req, entry.rev); err != nil {
			failed++
			logger.Log.Warn("auto-save failed for submission",
				zap.String("submissionId", entry.req.SubmissionID), zap.Error(err))
			continue
		}
		saved++
	}
	return saved, failed
}

// StartAutoSave flushes the unsaved buffer on a timer.
func (s *GradingService) StartAutoSave(interval time.Duration) {
	s.autoMu.Lock()
	defer s.autoMu.Unlock()
	if s.autoStop != nil {
		return
	}
	s.autoStop = make(chan struct{})

	go func(stop chan struct{}) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.UnsavedCount() == 0 {
					continue
				}
				saved, failed := s.FlushUnsaved()
				logger.Log.Info("auto-save pass",
					zap.Int("saved", saved), zap.Int("failed", failed))
			case <-stop:
				return
			}
		}
	}(s.autoStop)
	logger.Log.Info("auto-save started", zap.Duration("interval", interval))
}

func (s *GradingService) StopAutoSave() {
	s.autoMu.Lock()
	defer s.autoMu.Unlock()
	if s.autoStop == nil {
		return
	}
	close(s.autoStop)
	s.autoStop = nil
}
