package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"palette_backend/internal/config"
	"palette_backend/internal/model"
	"palette_backend/internal/repository"
	"palette_backend/internal/util"
	"palette_backend/pkg/logger"
	"palette_backend/pkg/monitoring"
	"palette_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SyncItemError pairs an outbox row with the error that failed it.
type SyncItemError struct {
	ItemID     string `json:"itemId"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Error      string `json:"error"`
}

// SyncResult summarizes one drain pass over the outbox.
type SyncResult struct {
	StartedAt time.Time       `json:"startedAt"`
	Duration  time.Duration   `json:"duration"`
	Uploaded  int             `json:"uploaded"`
	Failed    int             `json:"failed"`
	Errors    []SyncItemError `json:"errors,omitempty"`
}

// SyncStatus is the engine's externally visible state.
type SyncStatus struct {
	Online         bool       `json:"online"`
	SyncInProgress bool       `json:"syncInProgress"`
	PendingCount   int64      `json:"pendingCount"`
	LastSyncTime   *time.Time `json:"lastSyncTime,omitempty"`
}

// SyncService drains the durable outbox against Canvas and pulls course data
// down. Local writes never wait on it: every upload goes through the queue,
// and a failed item never blocks the items behind it.
type SyncService struct {
	Queue       *repository.SyncQueueRepository
	Rubrics     *RubricService
	RubricRepo  *repository.RubricRepository
	Courses     *repository.CourseRepository
	Assessments *repository.AssessmentRepository
	Client      CanvasAPI
	Monitor     *ConnectivityMonitor
	DB          *gorm.DB

	cfg            config.SyncConfig
	syncInProgress atomic.Bool
	results        chan SyncResult

	autoMu   sync.Mutex
	autoStop chan struct{}
}

func NewSyncService(
	queue *repository.SyncQueueRepository,
	rubrics *RubricService,
	courses *repository.CourseRepository,
	assessments *repository.AssessmentRepository,
	client CanvasAPI,
	monitor *ConnectivityMonitor,
	db *gorm.DB,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		Queue:       queue,
		Rubrics:     rubrics,
		RubricRepo:  rubrics.Repo,
		Courses:     courses,
		Assessments: assessments,
		Client:      client,
		Monitor:     monitor,
		DB:          db,
		cfg:         cfg,
		results:     make(chan SyncResult, 16),
	}
}

// Results exposes completed pass summaries. The channel is buffered and
// never blocks the engine; slow consumers lose old results, not sync.
func (s *SyncService) Results() <-chan SyncResult {
	return s.results
}

// SyncAll drains up to one batch of pending outbox items, oldest first.
// At most one pass runs at a time; a second caller gets ErrSyncInProgress.
// Each item succeeds or fails on its own.
func (s *SyncService) SyncAll(ctx context.Context) (*SyncResult, error) {
	if !s.Monitor.IsOnline() {
		return nil, util.ErrOffline
	}
	if !s.syncInProgress.CompareAndSwap(false, true) {
		return nil, util.ErrSyncInProgress
	}
	defer s.syncInProgress.Store(false)

	ctx, span := tracing.Tracer.Start(ctx, "sync.drain")
	defer span.End()

	start := time.Now()
	result := &SyncResult{StartedAt: start}

	items, err := s.Queue.PendingItems(s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("sync.batch_size", len(items)))
	logger.Log.Info("sync pass started", zap.Int("items", len(items)))

	for i := range items {
		item := &items[i]
		if err := s.Queue.UpdateStatus(item.ID, model.SyncInProgress, ""); err != nil {
			logger.Log.Error("failed to claim sync item", zap.String("itemId", item.ID), zap.Error(err))
			continue
		}

		if err := s.processItem(ctx, item); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, SyncItemError{
				ItemID:     item.ID,
				EntityType: item.EntityType,
				EntityID:   item.EntityID,
				Error:      err.Error(),
			})
			monitoring.SyncItemsProcessed.WithLabelValues(item.EntityType, "failed").Inc()
			if uerr := s.Queue.UpdateStatus(item.ID, model.SyncFailed, err.Error()); uerr != nil {
				logger.Log.Error("failed to record sync failure", zap.String("itemId", item.ID), zap.Error(uerr))
			}
			logger.Log.Warn("sync item failed",
				zap.String("itemId", item.ID),
				zap.String("entityType", item.EntityType),
				zap.String("entityId", item.EntityID),
				zap.Error(err))
			continue
		}

		result.Uploaded++
		monitoring.SyncItemsProcessed.WithLabelValues(item.EntityType, "completed").Inc()
		if uerr := s.Queue.UpdateStatus(item.ID, model.SyncCompleted, ""); uerr != nil {
			logger.Log.Error("failed to complete sync item", zap.String("itemId", item.ID), zap.Error(uerr))
		}
	}

	result.Duration = time.Since(start)
	monitoring.SyncPassDuration.Observe(result.Duration.Seconds())
	if depth, err := s.Queue.PendingCount(); err == nil {
		monitoring.SyncQueueDepth.Set(float64(depth))
	}

	logger.Log.Info("sync pass finished",
		zap.Int("uploaded", result.Uploaded),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	select {
	case s.results <- *result:
	default:
	}
	return result, nil
}

func (s *SyncService) processItem(ctx context.Context, item *model.SyncQueueItem) error {
	switch item.EntityType {
	case model.EntityRubric:
		return s.pushRubric(ctx, item.EntityID)
	case model.EntityAssessment:
		return s.pushAssessment(ctx, item.EntityID)
	case model.EntityComment:
		return s.pushComment(ctx, item.EntityID)
	default:
		return fmt.Errorf("unknown entity type %q", item.EntityType)
	}
}

// UploadRubric pushes a template to Canvas immediately when online. Offline,
// or when the push fails, the work lands in the outbox; an offline deferral
// is not an error, a failed attempt is. Returns whether the upload was
// queued instead of completed.
func (s *SyncService) UploadRubric(ctx context.Context, rubricID string) (bool, error) {
	if !s.Monitor.IsOnline() {
		if _, err := s.Queue.Enqueue(model.EntityRubric, rubricID, model.OpCreate); err != nil {
			return false, err
		}
		logger.Log.Info("offline, queued rubric upload", zap.String("rubricId", rubricID))
		return true, nil
	}

	if err := s.pushRubric(ctx, rubricID); err != nil {
		if _, qerr := s.Queue.Enqueue(model.EntityRubric, rubricID, model.OpCreate); qerr != nil {
			logger.Log.Error("failed to queue rubric after push failure",
				zap.String("rubricId", rubricID), zap.Error(qerr))
		}
		return true, err
	}
	return false, nil
}

func (s *SyncService) pushRubric(ctx context.Context, rubricID string) error {
	tpl, err := s.RubricRepo.FindTemplateByID(rubricID)
	if err != nil {
		return err
	}
	courseCanvasID, err := s.RubricRepo.CourseCanvasIDForTemplate(rubricID)
	if err != nil {
		return err
	}

	created, err := s.Client.CreateRubric(ctx, courseCanvasID, ToCanvasRubricPayload(tpl))
	if err != nil {
		return err
	}

	canvasID := util.NormalizeCanvasID(created.ID.String())
	if err := s.RubricRepo.SetCanvasID(rubricID, canvasID); err != nil {
		return err
	}
	logger.Log.Info("uploaded rubric",
		zap.String("rubricId", rubricID), zap.String("canvasId", canvasID))
	return nil
}

// pushAssessment sends the per-criterion grades of one assessment as a
// composite submission PUT. Criteria whose rubric rows never came from
// Canvas carry no Canvas id and are skipped rather than failing the item.
func (s *SyncService) pushAssessment(ctx context.Context, assessmentID string) error {
	assessment, err := s.Assessments.FindByID(assessmentID)
	if err != nil {
		return err
	}
	info, err := s.Courses.SyncInfo(assessment.SubmissionID)
	if err != nil {
		return err
	}
	if info.CourseCanvasID == "" || info.AssignmentCanvasID == "" || info.StudentCanvasID == "" {
		return fmt.Errorf("submission %s is missing canvas identifiers", assessment.SubmissionID)
	}

	tpl, err := s.RubricRepo.FindTemplateByID(assessment.RubricTemplateID)
	if err != nil {
		return err
	}
	canvasCriterionIDs := make(map[string]string, len(tpl.Criteria))
	for _, criterion := range tpl.Criteria {
		if criterion.CanvasCriterionID != "" {
			canvasCriterionIDs[criterion.ID] = criterion.CanvasCriterionID
		}
	}

	upload := AssessmentUpload{RubricAssessment: make(map[string]CriterionGradeUpload)}
	for _, ca := range assessment.CriterionAssessments {
		canvasID, ok := canvasCriterionIDs[ca.CriterionID]
		if !ok {
			logger.Log.Warn("criterion has no canvas id, skipping",
				zap.String("assessmentId", assessmentID), zap.String("criterionId", ca.CriterionID))
			continue
		}
		upload.RubricAssessment[canvasID] = CriterionGradeUpload{
			Points:   ca.Points,
			Comments: ca.Comments,
		}
	}
	if len(upload.RubricAssessment) == 0 {
		return fmt.Errorf("assessment %s has no criteria known to canvas", assessmentID)
	}

	err = s.Client.PutSubmission(ctx, info.CourseCanvasID, info.AssignmentCanvasID, info.StudentCanvasID, upload)
	if err != nil {
		return err
	}
	return s.Assessments.MarkSynced(assessmentID, time.Now())
}

func (s *SyncService) pushComment(ctx context.Context, commentID string) error {
	comment, err := s.Assessments.FindCommentByID(commentID)
	if err != nil {
		return err
	}
	info, err := s.Courses.SyncInfo(comment.SubmissionID)
	if err != nil {
		return err
	}
	if info.CourseCanvasID == "" || info.AssignmentCanvasID == "" || info.StudentCanvasID == "" {
		return fmt.Errorf("submission %s is missing canvas identifiers", comment.SubmissionID)
	}

	upload := CommentUpload{Comment: CommentBody{
		TextComment:  comment.Content,
		GroupComment: comment.CommentType == model.CommentGroup,
	}}
	err = s.Client.PutSubmission(ctx, info.CourseCanvasID, info.AssignmentCanvasID, info.StudentCanvasID, upload)
	if err != nil {
		return err
	}
	return s.Assessments.MarkCommentSynced(commentID, time.Now())
}

// DownloadRubric imports one Canvas rubric; a previously imported rubric with
// the same normalized id is returned as-is instead of duplicated.
func (s *SyncService) DownloadRubric(ctx context.Context, courseCanvasID, rubricCanvasID string) (*model.RubricTemplate, error) {
	cr, err := s.Client.GetRubric(ctx, courseCanvasID, rubricCanvasID)
	if err != nil {
		return nil, err
	}
	return s.Rubrics.ImportCanvasRubric(FromCanvasRubric(cr, "canvas-import"))
}

// DownloadCourses pulls the caller's active course list. Courses are the root
// of the local graph; everything else downloaded or uploaded hangs off a row
// created here. Each course is upserted in its own transaction.
func (s *SyncService) DownloadCourses(ctx context.Context) (int, error) {
	courses, err := s.Client.ListCourses(ctx)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, cc := range courses {
		term := ""
		if cc.Term != nil {
			term = cc.Term.Name
		}
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			return s.Courses.Tx(tx).UpsertCourse(&model.Course{
				CanvasID:   util.NormalizeCanvasID(cc.ID.String()),
				Name:       cc.Name,
				CourseCode: cc.CourseCode,
				Term:       term,
			})
		})
		if err != nil {
			logger.Log.Warn("failed to import course",
				zap.String("canvasId", cc.ID.String()), zap.Error(err))
			continue
		}
		imported++
	}
	logger.Log.Info("downloaded courses", zap.Int("imported", imported))
	return imported, nil
}

// DownloadAssignments pulls the assignment list for a locally known course.
// Each assignment is upserted in its own transaction so one malformed row
// does not poison the rest.
func (s *SyncService) DownloadAssignments(ctx context.Context, courseID string) (int, error) {
	course, err := s.Courses.FindCourseByID(courseID)
	if err != nil {
		return 0, err
	}

	assignments, err := s.Client.ListAssignments(ctx, course.CanvasID)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, ca := range assignments {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			return s.Courses.Tx(tx).UpsertAssignment(&model.Assignment{
				CanvasID:       util.NormalizeCanvasID(ca.ID.String()),
				CourseID:       course.ID,
				Name:           ca.Name,
				Description:    ca.Description,
				PointsPossible: ca.PointsPossible,
				DueAt:          ca.DueAt,
			})
		})
		if err != nil {
			logger.Log.Warn("failed to import assignment",
				zap.String("canvasId", ca.ID.String()), zap.Error(err))
			continue
		}
		imported++
	}
	logger.Log.Info("downloaded assignments",
		zap.String("courseId", courseID), zap.Int("imported", imported))
	return imported, nil
}

// DownloadSubmissions pulls submissions with their students for one
// assignment. The student upsert runs before the submission upsert in the
// same transaction so the foreign key always resolves.
func (s *SyncService) DownloadSubmissions(ctx context.Context, assignmentID string) (int, error) {
	assignment, err := s.Courses.FindAssignmentByID(assignmentID)
	if err != nil {
		return 0, err
	}
	course, err := s.Courses.FindCourseByID(assignment.CourseID)
	if err != nil {
		return 0, err
	}

	submissions, err := s.Client.ListSubmissions(ctx, course.CanvasID, assignment.CanvasID)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, cs := range submissions {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			courses := s.Courses.Tx(tx)
			student := &model.Student{
				CanvasID: util.NormalizeCanvasID(cs.User.ID.String()),
				CourseID: course.ID,
				Name:     cs.User.Name,
				Email:    cs.User.Email,
			}
			if err := courses.UpsertStudent(student); err != nil {
				return err
			}
			return courses.UpsertSubmission(&model.Submission{
				CanvasID:       util.NormalizeCanvasID(cs.ID.String()),
				AssignmentID:   assignment.ID,
				StudentID:      student.ID,
				SubmittedAt:    cs.SubmittedAt,
				Score:          cs.Score,
				Grade:          cs.Grade,
				WorkflowState:  cs.WorkflowState,
				SubmissionType: cs.SubmissionType,
			})
		})
		if err != nil {
			logger.Log.Warn("failed to import submission",
				zap.String("canvasId", cs.ID.String()), zap.Error(err))
			continue
		}
		imported++
	}
	logger.Log.Info("downloaded submissions",
		zap.String("assignmentId", assignmentID), zap.Int("imported", imported))
	return imported, nil
}

// RetryFailedSync returns failed items under the retry ceiling to pending.
func (s *SyncService) RetryFailedSync() (int64, error) {
	reset, err := s.Queue.ResetFailed(s.cfg.MaxRetries)
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		logger.Log.Info("reset failed sync items", zap.Int64("count", reset))
	}
	return reset, nil
}

// ReconcileStaleItems returns items left in_progress by a previous crash to
// pending. Runs once at startup, before the first drain.
func (s *SyncService) ReconcileStaleItems() error {
	reclaimed, err := s.Queue.ReconcileStale()
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Log.Warn("reclaimed stale sync items from previous run", zap.Int64("count", reclaimed))
	}
	return nil
}

func (s *SyncService) Status() (*SyncStatus, error) {
	pending, err := s.Queue.PendingCount()
	if err != nil {
		return nil, err
	}
	last, err := s.Queue.LastSyncTime()
	if err != nil {
		return nil, err
	}
	return &SyncStatus{
		Online:         s.Monitor.IsOnline(),
		SyncInProgress: s.syncInProgress.Load(),
		PendingCount:   pending,
		LastSyncTime:   last,
	}, nil
}

// ClearSyncQueue removes completed and failed rows. Pending and in-progress
// work is never cleared.
func (s *SyncService) ClearSyncQueue() (int64, error) {
	return s.Queue.ClearFinished()
}

// StartAutoSync drains the outbox on a timer whenever the monitor reports
// online. Errors are logged and the ticker keeps going.
func (s *SyncService) StartAutoSync() {
	s.autoMu.Lock()
	defer s.autoMu.Unlock()
	if s.autoStop != nil {
		return
	}
	s.autoStop = make(chan struct{})

	go func(stop chan struct{}) {
		ticker := time.NewTicker(s.cfg.AutoSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.Monitor.IsOnline() || s.syncInProgress.Load() {
					continue
				}
				if _, err := s.SyncAll(context.Background()); err != nil &&
					err != util.ErrOffline && err != util.ErrSyncInProgress {
					logger.Log.Error("auto-sync pass failed", zap.Error(err))
				}
			case <-stop:
				return
			}
		}
	}(s.autoStop)
	logger.Log.Info("auto-sync started", zap.Duration("interval", s.cfg.AutoSyncInterval))
}

func (s *SyncService) StopAutoSync() {
	s.autoMu.Lock()
	defer s.autoMu.Unlock()
	if s.autoStop == nil {
		return
	}
	close(s.autoStop)
	s.autoStop = nil
}
