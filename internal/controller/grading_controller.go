package controller

import (
	"palette_backend/internal/service"
	"palette_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type GradingController struct {
	GradingService *service.GradingService
}

func NewGradingController(gradingService *service.GradingService) *GradingController {
	return &GradingController{GradingService: gradingService}
}

// @Summary Start a grading session
// @Description Loads the assignment's rubric and every submission with its grading state. Fails when no rubric is attached.
// @Tags grading
// @Produce json
// @Param id path string true "Assignment id"
// @Success 200 {object} util.Response
// @Router /api/assignments/{id}/grading-session [post]
func (c *GradingController) StartSession(ctx *gin.Context) {
	session, err := c.GradingService.StartGradingSession(ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// @Summary Grade a submission
// @Description Validates against the rubric and commits grades, comments and outbox entries in one transaction.
// @Tags grading
// @Accept json
// @Produce json
// @Param grade body service.GradeSubmissionReq true "Per-criterion grades and comments"
// @Success 200 {object} util.Response
// @Router /api/grading/submissions [post]
func (c *GradingController) GradeSubmission(ctx *gin.Context) {
	var req service.GradeSubmissionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if req.GraderID == "" {
		req.GraderID = util.CurrentUserID(ctx)
	}

	assessment, err := c.GradingService.GradeSubmission(req)
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, assessment)
}

// @Summary Get a submission for grading
// @Tags grading
// @Produce json
// @Param id path string true "Submission id"
// @Success 200 {object} util.Response
// @Router /api/grading/submissions/{id} [get]
func (c *GradingController) GetSubmission(ctx *gin.Context) {
	view, err := c.GradingService.GetSubmissionForGrading(ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary Grading progress
// @Tags grading
// @Produce json
// @Param id path string true "Assignment id"
// @Success 200 {object} util.Response
// @Router /api/assignments/{id}/grading-progress [get]
func (c *GradingController) Progress(ctx *gin.Context) {
	progress, err := c.GradingService.GetGradingProgress(ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

type bulkGradeReq struct {
	Grades []service.GradeSubmissionReq `json:"grades" binding:"required"`
}

// @Summary Bulk grade
// @Description Grades a batch; each submission succeeds or fails independently.
// @Tags grading
// @Accept json
// @Produce json
// @Param grades body bulkGradeReq true "Batch of grades"
// @Success 200 {object} util.Response
// @Router /api/grading/bulk [post]
func (c *GradingController) BulkGrade(ctx *gin.Context) {
	var req bulkGradeReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	for i := range req.Grades {
		if req.Grades[i].GraderID == "" {
			req.Grades[i].GraderID = util.CurrentUserID(ctx)
		}
	}

	util.Success(ctx, c.GradingService.BulkGrade(req.Grades))
}

// @Summary Grading analytics
// @Tags grading
// @Produce json
// @Param id path string true "Assignment id"
// @Success 200 {object} util.Response
// @Router /api/assignments/{id}/analytics [get]
func (c *GradingController) Analytics(ctx *gin.Context) {
	analytics, err := c.GradingService.GetGradingAnalytics(ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, analytics)
}

// @Summary Buffer an unsaved grade
// @Description Holds an in-progress grade in memory for the auto-save timer. Not durable until committed.
// @Tags grading
// @Accept json
// @Produce json
// @Param grade body service.GradeSubmissionReq true "In-progress grade"
// @Success 202 {object} util.Response
// @Router /api/grading/unsaved [post]
func (c *GradingController) BufferUnsaved(ctx *gin.Context) {
	var req service.GradeSubmissionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if req.GraderID == "" {
		req.GraderID = util.CurrentUserID(ctx)
	}

	c.GradingService.AddUnsavedChange(req)
	util.Accepted(ctx, gin.H{"buffered": c.GradingService.UnsavedCount()})
}

// @Summary Flush unsaved grades
// @Tags grading
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/grading/unsaved/flush [post]
func (c *GradingController) FlushUnsaved(ctx *gin.Context) {
	saved, failed := c.GradingService.FlushUnsaved()
	util.Success(ctx, gin.H{"saved": saved, "failed": failed})
}
