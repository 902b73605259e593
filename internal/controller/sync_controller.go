package controller

import (
	"palette_backend/internal/service"
	"palette_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SyncController struct {
	SyncService *service.SyncService
	Monitor     *service.ConnectivityMonitor
}

func NewSyncController(syncService *service.SyncService, monitor *service.ConnectivityMonitor) *SyncController {
	return &SyncController{SyncService: syncService, Monitor: monitor}
}

// @Summary Drain the sync outbox
// @Description Runs one sync pass. Returns 202 when offline and 409 when a pass is already running.
// @Tags sync
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/sync [post]
func (c *SyncController) SyncAll(ctx *gin.Context) {
	result, err := c.SyncService.SyncAll(ctx.Request.Context())
	if err == util.ErrSyncInProgress {
		util.Error(ctx, 409, err.Error())
		return
	}
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary Sync status
// @Tags sync
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/sync/status [get]
func (c *SyncController) Status(ctx *gin.Context) {
	status, err := c.SyncService.Status()
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// @Summary Probe Canvas connectivity
// @Tags sync
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/sync/probe [post]
func (c *SyncController) Probe(ctx *gin.Context) {
	online := c.Monitor.Probe(ctx.Request.Context())
	util.Success(ctx, gin.H{"online": online})
}

// @Summary Retry failed sync items
// @Tags sync
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/sync/retry [post]
func (c *SyncController) Retry(ctx *gin.Context) {
	reset, err := c.SyncService.RetryFailedSync()
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"reset": reset})
}

// @Summary Clear finished sync items
// @Description Removes completed and failed rows from the outbox. Pending work is untouched.
// @Tags sync
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/sync/queue [delete]
func (c *SyncController) ClearQueue(ctx *gin.Context) {
	removed, err := c.SyncService.ClearSyncQueue()
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"removed": removed})
}

// @Summary Upload a rubric to Canvas
// @Description Pushes immediately when online; otherwise queues it and returns 202.
// @Tags sync
// @Produce json
// @Param id path string true "Rubric id"
// @Success 200 {object} util.Response
// @Router /api/rubrics/{id}/upload [post]
func (c *SyncController) UploadRubric(ctx *gin.Context) {
	queued, err := c.SyncService.UploadRubric(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	if queued {
		util.Accepted(ctx, gin.H{"queued": true})
		return
	}
	util.Success(ctx, gin.H{"queued": false})
}

type downloadRubricReq struct {
	CourseCanvasID string `json:"courseCanvasId" binding:"required"`
	RubricCanvasID string `json:"rubricCanvasId" binding:"required"`
}

// @Summary Download a rubric from Canvas
// @Tags sync
// @Accept json
// @Produce json
// @Param body body downloadRubricReq true "Canvas course and rubric ids"
// @Success 200 {object} util.Response
// @Router /api/sync/rubrics/download [post]
func (c *SyncController) DownloadRubric(ctx *gin.Context) {
	var req downloadRubricReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	tpl, err := c.SyncService.DownloadRubric(ctx.Request.Context(), req.CourseCanvasID, req.RubricCanvasID)
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, tpl)
}

// @Summary Download the active course list
// @Description Imports the caller's Canvas courses. Runs first on a fresh install; downloads and uploads resolve against rows created here.
// @Tags sync
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/courses/download [post]
func (c *SyncController) DownloadCourses(ctx *gin.Context) {
	imported, err := c.SyncService.DownloadCourses(ctx.Request.Context())
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"imported": imported})
}

// @Summary Download assignments for a course
// @Tags sync
// @Produce json
// @Param id path string true "Course id"
// @Success 200 {object} util.Response
// @Router /api/courses/{id}/assignments/download [post]
func (c *SyncController) DownloadAssignments(ctx *gin.Context) {
	imported, err := c.SyncService.DownloadAssignments(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"imported": imported})
}

// @Summary Download submissions for an assignment
// @Tags sync
// @Produce json
// @Param id path string true "Assignment id"
// @Success 200 {object} util.Response
// @Router /api/assignments/{id}/submissions/download [post]
func (c *SyncController) DownloadSubmissions(ctx *gin.Context) {
	imported, err := c.SyncService.DownloadSubmissions(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"imported": imported})
}
