package controller

import (
	"palette_backend/internal/service"
	"palette_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type RubricController struct {
	RubricService *service.RubricService
}

func NewRubricController(rubricService *service.RubricService) *RubricController {
	return &RubricController{RubricService: rubricService}
}

// @Summary Create a rubric
// @Description Creates a rubric template with its criteria and ratings. An empty criteria list gets the default set.
// @Tags rubrics
// @Accept json
// @Produce json
// @Param rubric body service.RubricReq true "Rubric definition"
// @Success 201 {object} util.Response
// @Router /api/rubrics [post]
func (c *RubricController) CreateRubric(ctx *gin.Context) {
	var req service.RubricReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	tpl, err := c.RubricService.CreateRubric(req, util.CurrentUserID(ctx))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Created(ctx, tpl)
}

// @Summary List rubrics
// @Tags rubrics
// @Produce json
// @Param createdBy query string false "Filter by creator"
// @Success 200 {object} util.Response
// @Router /api/rubrics [get]
func (c *RubricController) ListRubrics(ctx *gin.Context) {
	templates, err := c.RubricService.ListRubrics(ctx.Query("createdBy"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, templates)
}

// @Summary Rubric library
// @Description Lists active rubrics with assignment and assessment usage counts.
// @Tags rubrics
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/rubrics/library [get]
func (c *RubricController) Library(ctx *gin.Context) {
	rows, err := c.RubricService.Library(ctx.Query("createdBy"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, rows)
}

// @Summary Get a rubric
// @Tags rubrics
// @Produce json
// @Param id path string true "Rubric id"
// @Success 200 {object} util.Response
// @Router /api/rubrics/{id} [get]
func (c *RubricController) GetRubric(ctx *gin.Context) {
	tpl, err := c.RubricService.GetRubric(ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, tpl)
}

// @Summary Edit a rubric
// @Description Edits in place when unused; creates a new version when the rubric backs existing assessments. Returns the id now carrying the changes.
// @Tags rubrics
// @Accept json
// @Produce json
// @Param id path string true "Rubric id"
// @Param changes body service.RubricChanges true "Partial changes"
// @Success 200 {object} util.Response
// @Router /api/rubrics/{id} [put]
func (c *RubricController) EditRubric(ctx *gin.Context) {
	var changes service.RubricChanges
	if err := ctx.ShouldBindJSON(&changes); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	id, err := c.RubricService.EditRubric(ctx.Param("id"), changes, util.CurrentUserID(ctx))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"rubricId": id})
}

type copyRubricReq struct {
	Name string `json:"name"`
}

// @Summary Copy a rubric
// @Tags rubrics
// @Accept json
// @Produce json
// @Param id path string true "Source rubric id"
// @Success 201 {object} util.Response
// @Router /api/rubrics/{id}/copy [post]
func (c *RubricController) CopyRubric(ctx *gin.Context) {
	var req copyRubricReq
	if err := ctx.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		util.BadRequest(ctx, err.Error())
		return
	}

	tpl, err := c.RubricService.CopyRubric(ctx.Param("id"), req.Name, util.CurrentUserID(ctx))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Created(ctx, tpl)
}

// @Summary Validate a rubric
// @Description Reports advisory issues without blocking anything.
// @Tags rubrics
// @Produce json
// @Param id path string true "Rubric id"
// @Success 200 {object} util.Response
// @Router /api/rubrics/{id}/validate [get]
func (c *RubricController) ValidateRubric(ctx *gin.Context) {
	issues, err := c.RubricService.ValidateRubric(ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"valid": len(issues) == 0, "issues": issues})
}

// @Summary Export a rubric
// @Tags rubrics
// @Produce json
// @Param id path string true "Rubric id"
// @Success 200 {object} util.Response
// @Router /api/rubrics/{id}/export [get]
func (c *RubricController) ExportRubric(ctx *gin.Context) {
	export, err := c.RubricService.ExportRubric(ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, export)
}

// @Summary Import a rubric
// @Tags rubrics
// @Accept json
// @Produce json
// @Param export body service.RubricExport true "Exported rubric"
// @Success 201 {object} util.Response
// @Router /api/rubrics/import [post]
func (c *RubricController) ImportRubric(ctx *gin.Context) {
	var export service.RubricExport
	if err := ctx.ShouldBindJSON(&export); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	tpl, err := c.RubricService.ImportRubric(&export, util.CurrentUserID(ctx))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Created(ctx, tpl)
}

// @Summary Add a criterion
// @Tags rubrics
// @Accept json
// @Produce json
// @Param id path string true "Rubric id"
// @Param criterion body service.CriterionReq true "Criterion definition"
// @Success 201 {object} util.Response
// @Router /api/rubrics/{id}/criteria [post]
func (c *RubricController) AddCriterion(ctx *gin.Context) {
	var req service.CriterionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	criterion, err := c.RubricService.AddCriterion(ctx.Param("id"), req, util.CurrentUserID(ctx))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Created(ctx, criterion)
}

// @Summary Update a criterion
// @Description Edits in place when the owning rubric is unused; otherwise the rubric is versioned and the edit lands on the new version. Returns the criterion carrying the edit.
// @Tags rubrics
// @Accept json
// @Produce json
// @Param id path string true "Criterion id"
// @Param changes body service.CriterionChanges true "Partial changes"
// @Success 200 {object} util.Response
// @Router /api/criteria/{id} [put]
func (c *RubricController) UpdateCriterion(ctx *gin.Context) {
	var changes service.CriterionChanges
	if err := ctx.ShouldBindJSON(&changes); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	criterion, err := c.RubricService.UpdateCriterion(ctx.Param("id"), changes, util.CurrentUserID(ctx))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, criterion)
}

// @Summary Delete a criterion
// @Description Refused with 409 when any assessment references the criterion.
// @Tags rubrics
// @Produce json
// @Param id path string true "Criterion id"
// @Success 200 {object} util.Response
// @Router /api/criteria/{id} [delete]
func (c *RubricController) DeleteCriterion(ctx *gin.Context) {
	if err := c.RubricService.DeleteCriterion(ctx.Param("id")); err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

type reorderReq struct {
	Order []string `json:"order" binding:"required"`
}

// @Summary Reorder criteria
// @Tags rubrics
// @Accept json
// @Produce json
// @Param id path string true "Rubric id"
// @Param order body reorderReq true "Criterion ids in desired order"
// @Success 200 {object} util.Response
// @Router /api/rubrics/{id}/criteria/order [put]
func (c *RubricController) ReorderCriteria(ctx *gin.Context) {
	var req reorderReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.RubricService.ReorderCriteria(ctx.Param("id"), req.Order); err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

type attachRubricReq struct {
	RubricID string `json:"rubricId" binding:"required"`
}

// @Summary Attach a rubric to an assignment
// @Tags rubrics
// @Accept json
// @Produce json
// @Param id path string true "Assignment id"
// @Param body body attachRubricReq true "Rubric to attach"
// @Success 200 {object} util.Response
// @Router /api/assignments/{id}/rubric [put]
func (c *RubricController) AttachToAssignment(ctx *gin.Context) {
	var req attachRubricReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.RubricService.AttachToAssignment(ctx.Param("id"), req.RubricID); err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
