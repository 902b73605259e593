package service

import (
	"errors"
	"testing"

	"palette_backend/internal/model"
	"palette_backend/internal/util"
)

func TestStartGradingSessionRequiresRubric(t *testing.T) {
	db := newTestDB(t)
	grading := newGradingService(t, db)
	fixture := seedCourse(t, db)

	if _, err := grading.StartGradingSession(fixture.Assignment.ID); !errors.Is(err, util.ErrNoRubricAttached) {
		t.Fatalf("expected ErrNoRubricAttached, got %v", err)
	}

	rubrics := newRubricService(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	session, err := grading.StartGradingSession(fixture.Assignment.ID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if session.SessionID == "" {
		t.Error("session has no id")
	}
	if session.Rubric.ID != tpl.ID {
		t.Errorf("session rubric %s, want %s", session.Rubric.ID, tpl.ID)
	}
	if len(session.Submissions) != 2 {
		t.Fatalf("expected 2 submissions in session, got %d", len(session.Submissions))
	}
	// Ordered by student name: Ada before Grace.
	if session.Submissions[0].StudentName != "Ada Lovelace" {
		t.Errorf("submissions not ordered by student name: %q first", session.Submissions[0].StudentName)
	}
}

func TestGradeSubmissionCommitsAtomically(t *testing.T) {
	db := newTestDB(t)
	grading := newGradingService(t, db)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	assessment, err := grading.GradeSubmission(GradeSubmissionReq{
		SubmissionID: fixture.Submission.ID,
		CriterionGrades: []CriterionGradeReq{
			{CriterionID: tpl.Criteria[0].ID, Points: 8, Comments: "solid"},
			{CriterionID: tpl.Criteria[1].ID, Points: 7},
		},
		Comments: []CommentReq{{CommentType: model.CommentIndividual, Content: "Nice work"}},
		GraderID: "teacher-1",
	})
	if err != nil {
		t.Fatalf("grade submission: %v", err)
	}

	if assessment.Score != 15 {
		t.Errorf("score = %v, want 15", assessment.Score)
	}
	if assessment.IsSynced {
		t.Error("fresh assessment marked synced")
	}
	if len(assessment.CriterionAssessments) != 2 {
		t.Fatalf("expected 2 criterion rows, got %d", len(assessment.CriterionAssessments))
	}

	var comments []model.Comment
	db.Where("submission_id = ?", fixture.Submission.ID).Find(&comments)
	if len(comments) != 1 || comments[0].Content != "Nice work" {
		t.Fatalf("comment not persisted: %+v", comments)
	}

	// One outbox row for the assessment, one for the comment.
	var queued []model.SyncQueueItem
	db.Order("created_at asc").Find(&queued)
	if len(queued) != 2 {
		t.Fatalf("expected 2 outbox rows, got %d", len(queued))
	}
	for _, item := range queued {
		if item.Status != model.SyncPending {
			t.Errorf("outbox row %s status %q, want pending", item.ID, item.Status)
		}
	}
}

func TestRegradeReplacesCriterionGrade(t *testing.T) {
	db := newTestDB(t)
	grading := newGradingService(t, db)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	first := GradeSubmissionReq{
		SubmissionID: fixture.Submission.ID,
		CriterionGrades: []CriterionGradeReq{
			{CriterionID: tpl.Criteria[0].ID, Points: 4},
			{CriterionID: tpl.Criteria[1].ID, Points: 4},
		},
		GraderID: "teacher-1",
	}
	if _, err := grading.GradeSubmission(first); err != nil {
		t.Fatalf("first grade: %v", err)
	}

	regrade := first
	regrade.CriterionGrades = []CriterionGradeReq{
		{CriterionID: tpl.Criteria[0].ID, Points: 9, Comments: "much improved"},
		{CriterionID: tpl.Criteria[1].ID, Points: 6},
	}
	assessment, err := grading.GradeSubmission(regrade)
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}

	if assessment.Score != 15 {
		t.Errorf("score after regrade = %v, want 15", assessment.Score)
	}
	if len(assessment.CriterionAssessments) != 2 {
		t.Fatalf("regrade added rows instead of replacing: %d", len(assessment.CriterionAssessments))
	}

	var all []model.RubricAssessment
	db.Find(&all)
	if len(all) != 1 {
		t.Fatalf("regrade created a second assessment: %d", len(all))
	}
}

func TestGradeSubmissionValidation(t *testing.T) {
	db := newTestDB(t)
	grading := newGradingService(t, db)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	otherRating := tpl.Criteria[1].Ratings[0].ID

	tests := []struct {
		name   string
		grades []CriterionGradeReq
	}{
		{"unknown criterion", []CriterionGradeReq{{CriterionID: "nope", Points: 5}}},
		{"points above max rating", []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: 11}}},
		{"negative points", []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: -1}}},
		{"rating from another criterion", []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: 5, RatingID: &otherRating}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := grading.GradeSubmission(GradeSubmissionReq{
				SubmissionID:    fixture.Submission.ID,
				CriterionGrades: tt.grades,
				GraderID:        "teacher-1",
			})
			var verr *util.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	// Nothing leaked from the rejected attempts.
	var count int64
	db.Model(&model.RubricAssessment{}).Count(&count)
	if count != 0 {
		t.Errorf("rejected grades persisted %d assessments", count)
	}
}

func TestUnsavedBufferRetainsFailures(t *testing.T) {
	db := newTestDB(t)
	grading := newGradingService(t, db)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	grading.AddUnsavedChange(GradeSubmissionReq{
		SubmissionID:    fixture.Submission.ID,
		CriterionGrades: []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: 99}},
		GraderID:        "teacher-1",
	})
	grading.AddUnsavedChange(GradeSubmissionReq{
		SubmissionID:    fixture.Submission2.ID,
		CriterionGrades: []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: 9}},
		GraderID:        "teacher-1",
	})

	saved, failed := grading.FlushUnsaved()
	if saved != 1 || failed != 1 {
		t.Fatalf("flush = (%d saved, %d failed), want (1, 1)", saved, failed)
	}
	if grading.UnsavedCount() != 1 {
		t.Fatalf("failed grade dropped from buffer, count = %d", grading.UnsavedCount())
	}

	// Fixing the grade lets the next flush drain the buffer.
	grading.AddUnsavedChange(GradeSubmissionReq{
		SubmissionID:    fixture.Submission.ID,
		CriterionGrades: []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: 10}},
		GraderID:        "teacher-1",
	})
	saved, failed = grading.FlushUnsaved()
	if saved != 1 || failed != 0 {
		t.Fatalf("second flush = (%d, %d), want (1, 0)", saved, failed)
	}
	if grading.UnsavedCount() != 0 {
		t.Errorf("buffer not drained: %d", grading.UnsavedCount())
	}
}

func TestCommitKeepsEditBufferedAfterItStarted(t *testing.T) {
	db := newTestDB(t)
	grading := newGradingService(t, db)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	first := GradeSubmissionReq{
		SubmissionID:    fixture.Submission.ID,
		CriterionGrades: []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: 5}},
		GraderID:        "teacher-1",
	}
	grading.AddUnsavedChange(first)
	rev := grading.bufferRev(fixture.Submission.ID)

	// A newer edit lands after the flush has read the buffer but before the
	// first edit's commit finishes.
	second := first
	second.CriterionGrades = []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: 7}}
	grading.AddUnsavedChange(second)

	if _, err := grading.commitGrade(first, rev); err != nil {
		t.Fatalf("commit first edit: %v", err)
	}
	if grading.UnsavedCount() != 1 {
		t.Fatal("edit buffered mid-commit was dropped without being persisted")
	}

	saved, failed := grading.FlushUnsaved()
	if saved != 1 || failed != 0 {
		t.Fatalf("flush = (%d, %d), want (1, 0)", saved, failed)
	}
	if grading.UnsavedCount() != 0 {
		t.Errorf("buffer not drained: %d", grading.UnsavedCount())
	}

	assessment, err := grading.Assessments.FindBySubmission(fixture.Submission.ID)
	if err != nil {
		t.Fatalf("reload assessment: %v", err)
	}
	if assessment.Score != 7 {
		t.Errorf("score = %v, want the newer edit's 7", assessment.Score)
	}
}

func TestRegradeRetiresStaleCommentOutboxRows(t *testing.T) {
	db := newTestDB(t)
	grading := newGradingService(t, db)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	req := GradeSubmissionReq{
		SubmissionID:    fixture.Submission.ID,
		CriterionGrades: []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: 6}},
		Comments:        []CommentReq{{Content: "first pass"}},
		GraderID:        "teacher-1",
	}
	if _, err := grading.GradeSubmission(req); err != nil {
		t.Fatalf("first grade: %v", err)
	}

	req.Comments = []CommentReq{{Content: "second pass"}}
	if _, err := grading.GradeSubmission(req); err != nil {
		t.Fatalf("regrade: %v", err)
	}

	// Only the surviving comment's row is queued; rows for the replaced
	// comment would fail forever once the comment is gone.
	var commentRows []model.SyncQueueItem
	db.Where("entity_type = ?", model.EntityComment).Find(&commentRows)
	if len(commentRows) != 1 {
		t.Fatalf("expected 1 comment outbox row, got %d", len(commentRows))
	}
	for _, row := range commentRows {
		var n int64
		db.Model(&model.Comment{}).Where("id = ?", row.EntityID).Count(&n)
		if n == 0 {
			t.Errorf("outbox row %s references a deleted comment", row.ID)
		}
	}
}

func TestGradingProgressAndBulk(t *testing.T) {
	db := newTestDB(t)
	grading := newGradingService(t, db)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	result := grading.BulkGrade([]GradeSubmissionReq{
		{
			SubmissionID:    fixture.Submission.ID,
			CriterionGrades: []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: 10}},
			GraderID:        "teacher-1",
		},
		{
			SubmissionID:    "missing",
			CriterionGrades: []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: 10}},
			GraderID:        "teacher-1",
		},
	})
	if result.Graded != 1 || result.Failed != 1 {
		t.Fatalf("bulk = %+v, want 1 graded 1 failed", result)
	}
	if _, ok := result.Errors["missing"]; !ok {
		t.Error("failure not attributed to its submission")
	}

	progress, err := grading.GetGradingProgress(fixture.Assignment.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.Total != 2 || progress.Graded != 1 || progress.Remaining != 1 {
		t.Errorf("progress = %+v, want 1 of 2 graded", progress)
	}
	if progress.PercentGraded != 50 {
		t.Errorf("percent = %v, want 50", progress.PercentGraded)
	}
	if progress.UnsyncedCount != 1 {
		t.Errorf("unsynced = %d, want 1", progress.UnsyncedCount)
	}
}

func TestGradingAnalytics(t *testing.T) {
	db := newTestDB(t)
	grading := newGradingService(t, db)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	for i, sub := range []string{fixture.Submission.ID, fixture.Submission2.ID} {
		points := float64(10 - i*4) // 10 and 6
		if _, err := grading.GradeSubmission(GradeSubmissionReq{
			SubmissionID:    sub,
			CriterionGrades: []CriterionGradeReq{{CriterionID: tpl.Criteria[0].ID, Points: points}},
			GraderID:        "teacher-1",
		}); err != nil {
			t.Fatalf("grade %s: %v", sub, err)
		}
	}

	analytics, err := grading.GetGradingAnalytics(fixture.Assignment.ID)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if analytics.Count != 2 {
		t.Fatalf("count = %d, want 2", analytics.Count)
	}
	if analytics.Mean != 8 || analytics.Min != 6 || analytics.Max != 10 {
		t.Errorf("mean/min/max = %v/%v/%v, want 8/6/10", analytics.Mean, analytics.Min, analytics.Max)
	}
	if analytics.StdDev != 2 {
		t.Errorf("stddev = %v, want 2", analytics.StdDev)
	}
	if len(analytics.CriterionStats) == 0 {
		t.Error("no criterion stats")
	}
}
