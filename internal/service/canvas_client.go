package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"palette_backend/internal/config"
	"palette_backend/internal/model"
	"palette_backend/internal/util"

	"golang.org/x/time/rate"
)

// CanvasAPI is the slice of the Canvas REST surface this subsystem consumes.
// Token lifecycle is handled by an external auth component; the client only
// forwards the bearer credential it was constructed with.
type CanvasAPI interface {
	Ping(ctx context.Context) error
	ListCourses(ctx context.Context) ([]CanvasCourse, error)
	GetRubric(ctx context.Context, courseCanvasID, rubricCanvasID string) (*CanvasRubric, error)
	CreateRubric(ctx context.Context, courseCanvasID string, payload *CanvasRubricUpload) (*CanvasRubric, error)
	ListAssignments(ctx context.Context, courseCanvasID string) ([]CanvasAssignment, error)
	ListSubmissions(ctx context.Context, courseCanvasID, assignmentCanvasID string) ([]CanvasSubmission, error)
	PutSubmission(ctx context.Context, courseCanvasID, assignmentCanvasID, studentCanvasID string, body interface{}) error
}

// Canvas wire types. Numeric Canvas ids are decoded as json.Number and
// normalized before any local lookup.

type CanvasRubric struct {
	ID             json.Number       `json:"id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	PointsPossible float64           `json:"points_possible"`
	Data           []CanvasCriterion `json:"data"`
}

type CanvasCriterion struct {
	ID              string         `json:"id"`
	Description     string         `json:"description"`
	LongDescription string         `json:"long_description"`
	Points          float64        `json:"points"`
	Ratings         []CanvasRating `json:"ratings"`
}

type CanvasRating struct {
	ID              string  `json:"id"`
	Description     string  `json:"description"`
	LongDescription string  `json:"long_description"`
	Points          float64 `json:"points"`
}

type CanvasCourse struct {
	ID         json.Number `json:"id"`
	Name       string      `json:"name"`
	CourseCode string      `json:"course_code"`
	Term       *CanvasTerm `json:"term,omitempty"`
}

type CanvasTerm struct {
	Name string `json:"name"`
}

type CanvasAssignment struct {
	ID             json.Number `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	PointsPossible float64     `json:"points_possible"`
	DueAt          *time.Time  `json:"due_at"`
}

type CanvasUser struct {
	ID    json.Number `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
}

type CanvasSubmission struct {
	ID             json.Number `json:"id"`
	SubmittedAt    *time.Time  `json:"submitted_at"`
	Score          *float64    `json:"score"`
	Grade          string      `json:"grade"`
	WorkflowState  string      `json:"workflow_state"`
	SubmissionType string      `json:"submission_type"`
	User           CanvasUser  `json:"user"`
}

// Upload shapes. Canvas creation endpoints want criteria and ratings keyed by
// 1-based index strings rather than arrays.

type CanvasRubricUpload struct {
	Rubric FormattedRubric `json:"rubric"`
}

type FormattedRubric struct {
	Title          string                        `json:"title"`
	Description    string                        `json:"description,omitempty"`
	PointsPossible float64                       `json:"points_possible,omitempty"`
	Criteria       map[string]FormattedCriterion `json:"criteria"`
}

type FormattedCriterion struct {
	Description     string                     `json:"description"`
	LongDescription string                     `json:"long_description,omitempty"`
	Points          float64                    `json:"points"`
	Ratings         map[string]FormattedRating `json:"ratings"`
}

type FormattedRating struct {
	Description     string  `json:"description"`
	LongDescription string  `json:"long_description,omitempty"`
	Points          float64 `json:"points"`
}

type AssessmentUpload struct {
	RubricAssessment map[string]CriterionGradeUpload `json:"rubric_assessment"`
}

type CriterionGradeUpload struct {
	Points   float64 `json:"points"`
	Comments string  `json:"comments"`
}

type CommentUpload struct {
	Comment CommentBody `json:"comment"`
}

type CommentBody struct {
	TextComment  string `json:"text_comment"`
	GroupComment bool   `json:"group_comment,omitempty"`
}

// ToCanvasRubricPayload is the single adapter between the local nested rubric
// shape and the Canvas request format.
func ToCanvasRubricPayload(tpl *model.RubricTemplate) *CanvasRubricUpload {
	criteria := make(map[string]FormattedCriterion, len(tpl.Criteria))
	for i, criterion := range tpl.Criteria {
		ratings := make(map[string]FormattedRating, len(criterion.Ratings))
		for j, rating := range criterion.Ratings {
			ratings[strconv.Itoa(j+1)] = FormattedRating{
				Description:     rating.Description,
				LongDescription: rating.LongDescription,
				Points:          rating.Points,
			}
		}
		criteria[strconv.Itoa(i+1)] = FormattedCriterion{
			Description:     criterion.Description,
			LongDescription: criterion.LongDescription,
			Points:          criterion.Points,
			Ratings:         ratings,
		}
	}
	return &CanvasRubricUpload{
		Rubric: FormattedRubric{
			Title:          tpl.Name,
			Description:    tpl.Description,
			PointsPossible: tpl.PointsPossible,
			Criteria:       criteria,
		},
	}
}

// FromCanvasRubric converts a downloaded rubric into the local aggregate,
// normalizing every Canvas id it carries.
func FromCanvasRubric(cr *CanvasRubric, createdBy string) *model.RubricTemplate {
	tpl := &model.RubricTemplate{
		CanvasID:       util.NormalizeCanvasID(cr.ID.String()),
		Name:           cr.Title,
		Description:    cr.Description,
		PointsPossible: cr.PointsPossible,
		CreatedBy:      createdBy,
		LastModifiedBy: createdBy,
		IsActive:       true,
		Version:        1,
	}
	for i, criterion := range cr.Data {
		mc := model.RubricCriterion{
			CanvasCriterionID: util.NormalizeCanvasID(criterion.ID),
			Description:       criterion.Description,
			LongDescription:   criterion.LongDescription,
			Points:            criterion.Points,
			Position:          i,
		}
		for j, rating := range criterion.Ratings {
			mc.Ratings = append(mc.Ratings, model.RubricRating{
				CanvasRatingID:  util.NormalizeCanvasID(rating.ID),
				Description:     rating.Description,
				LongDescription: rating.LongDescription,
				Points:          rating.Points,
				Position:        j,
			})
		}
		tpl.Criteria = append(tpl.Criteria, mc)
	}
	return tpl
}

// CanvasClient is the HTTP implementation of CanvasAPI.
type CanvasClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewCanvasClient(cfg config.CanvasConfig, token string) *CanvasClient {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5
	}
	return &CanvasClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/api/v1",
		token:      token,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)),
	}
}

func (c *CanvasClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("canvas %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Ping is the lightweight authenticated probe used by the connectivity
// monitor. Any failure (network, auth, 5xx) counts as offline.
func (c *CanvasClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/users/self", nil, nil)
}

func (c *CanvasClient) ListCourses(ctx context.Context) ([]CanvasCourse, error) {
	var courses []CanvasCourse
	if err := c.do(ctx, http.MethodGet, "/courses?enrollment_state=active&include[]=term", nil, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

func (c *CanvasClient) GetRubric(ctx context.Context, courseCanvasID, rubricCanvasID string) (*CanvasRubric, error) {
	var rubric CanvasRubric
	path := fmt.Sprintf("/courses/%s/rubrics/%s", courseCanvasID, rubricCanvasID)
	if err := c.do(ctx, http.MethodGet, path, nil, &rubric); err != nil {
		return nil, err
	}
	return &rubric, nil
}

func (c *CanvasClient) CreateRubric(ctx context.Context, courseCanvasID string, payload *CanvasRubricUpload) (*CanvasRubric, error) {
	var rubric CanvasRubric
	path := fmt.Sprintf("/courses/%s/rubrics", courseCanvasID)
	if err := c.do(ctx, http.MethodPost, path, payload, &rubric); err != nil {
		return nil, err
	}
	return &rubric, nil
}

func (c *CanvasClient) ListAssignments(ctx context.Context, courseCanvasID string) ([]CanvasAssignment, error) {
	var assignments []CanvasAssignment
	path := fmt.Sprintf("/courses/%s/assignments", courseCanvasID)
	if err := c.do(ctx, http.MethodGet, path, nil, &assignments); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (c *CanvasClient) ListSubmissions(ctx context.Context, courseCanvasID, assignmentCanvasID string) ([]CanvasSubmission, error) {
	var submissions []CanvasSubmission
	path := fmt.Sprintf("/courses/%s/assignments/%s/submissions?include[]=user", courseCanvasID, assignmentCanvasID)
	if err := c.do(ctx, http.MethodGet, path, nil, &submissions); err != nil {
		return nil, err
	}
	return submissions, nil
}

// PutSubmission carries the composite assessment/grade/comment payload.
func (c *CanvasClient) PutSubmission(ctx context.Context, courseCanvasID, assignmentCanvasID, studentCanvasID string, body interface{}) error {
	path := fmt.Sprintf("/courses/%s/assignments/%s/submissions/%s", courseCanvasID, assignmentCanvasID, studentCanvasID)
	return c.do(ctx, http.MethodPut, path, body, nil)
}
