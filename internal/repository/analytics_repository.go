package repository

import (
	"gorm.io/gorm"
)

// AnalyticsRepository answers read-only aggregation queries over grading
// state. Nothing here mutates.
type AnalyticsRepository struct {
	DB *gorm.DB
}

func NewAnalyticsRepository(db *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{DB: db}
}

type ScoreStats struct {
	TotalGraded int64   `json:"totalGraded"`
	MeanScore   float64 `json:"meanScore"`
	MinScore    float64 `json:"minScore"`
	MaxScore    float64 `json:"maxScore"`
}

func (r *AnalyticsRepository) ScoreStats(assignmentID string) (*ScoreStats, error) {
	var stats ScoreStats
	err := r.DB.Table("rubric_assessments ra").
		Select("COUNT(ra.id) as total_graded, "+
			"COALESCE(AVG(ra.score), 0) as mean_score, "+
			"COALESCE(MIN(ra.score), 0) as min_score, "+
			"COALESCE(MAX(ra.score), 0) as max_score").
		Joins("JOIN submissions s ON ra.submission_id = s.id").
		Where("s.assignment_id = ?", assignmentID).
		Scan(&stats).Error
	return &stats, err
}

func (r *AnalyticsRepository) Scores(assignmentID string) ([]float64, error) {
	var scores []float64
	err := r.DB.Table("rubric_assessments ra").
		Joins("JOIN submissions s ON ra.submission_id = s.id").
		Where("s.assignment_id = ?", assignmentID).
		Pluck("ra.score", &scores).Error
	return scores, err
}

type ScoreBucket struct {
	ScoreRange float64 `json:"scoreRange"`
	Count      int64   `json:"count"`
}

// ScoreDistribution buckets assessment scores into 10-point ranges.
func (r *AnalyticsRepository) ScoreDistribution(assignmentID string) ([]ScoreBucket, error) {
	var buckets []ScoreBucket
	err := r.DB.Table("rubric_assessments ra").
		Select("ROUND(ra.score / 10) * 10 as score_range, COUNT(*) as count").
		Joins("JOIN submissions s ON ra.submission_id = s.id").
		Where("s.assignment_id = ?", assignmentID).
		Group("score_range").
		Order("score_range").
		Scan(&buckets).Error
	return buckets, err
}

type CriterionStats struct {
	CriterionID     string  `json:"criterionId"`
	CriterionName   string  `json:"criterionName"`
	AvgPoints       float64 `json:"avgPoints"`
	MinPoints       float64 `json:"minPoints"`
	MaxPoints       float64 `json:"maxPoints"`
	AssessmentCount int64   `json:"assessmentCount"`
}

func (r *AnalyticsRepository) CriterionStats(assignmentID string) ([]CriterionStats, error) {
	var stats []CriterionStats
	err := r.DB.Table("criterion_assessments ca").
		Select("rc.id as criterion_id, rc.description as criterion_name, "+
			"AVG(ca.points) as avg_points, MIN(ca.points) as min_points, "+
			"MAX(ca.points) as max_points, COUNT(ca.id) as assessment_count").
		Joins("JOIN rubric_criteria rc ON ca.criterion_id = rc.id").
		Joins("JOIN rubric_assessments ra ON ca.assessment_id = ra.id").
		Joins("JOIN submissions s ON ra.submission_id = s.id").
		Where("s.assignment_id = ?", assignmentID).
		Group("rc.id, rc.description, rc.position").
		Order("rc.position").
		Scan(&stats).Error
	return stats, err
}

type ProgressCounts struct {
	TotalSubmissions  int64 `json:"totalSubmissions"`
	GradedSubmissions int64 `json:"gradedSubmissions"`
	SyncedSubmissions int64 `json:"syncedSubmissions"`
}

func (r *AnalyticsRepository) ProgressCounts(assignmentID string) (*ProgressCounts, error) {
	var counts ProgressCounts
	err := r.DB.Table("submissions s").
		Select("COUNT(s.id) as total_submissions, "+
			"COUNT(ra.id) as graded_submissions, "+
			"COUNT(CASE WHEN ra.is_synced = 1 THEN 1 END) as synced_submissions").
		Joins("LEFT JOIN rubric_assessments ra ON s.id = ra.submission_id").
		Where("s.assignment_id = ?", assignmentID).
		Scan(&counts).Error
	return &counts, err
}

type UnsyncedRow struct {
	SubmissionID string  `json:"submissionId"`
	StudentName  string  `json:"studentName"`
	Score        float64 `json:"score"`
}

func (r *AnalyticsRepository) UnsyncedSubmissions(assignmentID string) ([]UnsyncedRow, error) {
	var rows []UnsyncedRow
	err := r.DB.Table("submissions s").
		Select("s.id as submission_id, st.name as student_name, ra.score").
		Joins("JOIN students st ON s.student_id = st.id").
		Joins("JOIN rubric_assessments ra ON s.id = ra.submission_id").
		Where("s.assignment_id = ? AND ra.is_synced = ?", assignmentID, false).
		Scan(&rows).Error
	return rows, err
}
