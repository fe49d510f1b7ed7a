package controller

import (
	"certify_backend/internal/service"
	"certify_backend/internal/util"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AdminController struct {
	CatalogService *service.CatalogService
	ContentService *service.ContentService
	ExportService  *service.ExportService
}

func NewAdminController(catalog *service.CatalogService, content *service.ContentService, export *service.ExportService) *AdminController {
	return &AdminController{
		CatalogService: catalog,
		ContentService: content,
		ExportService:  export,
	}
}

type UpdateContentRequest struct {
	Content string `json:"content" binding:"required"`
}

// UpdateCourseContent godoc
// @Summary 更新课程正文 (管理员)
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param slug path string true "课程 slug"
// @Param request body UpdateContentRequest true "课程正文"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /admin/courses/{slug}/content [put]
func (c *AdminController) UpdateCourseContent(ctx *gin.Context) {
	slug := ctx.Param("slug")
	if _, ok := c.CatalogService.Get(slug); !ok {
		util.Error(ctx, http.StatusNotFound, util.ErrCourseNotFound.Error())
		return
	}

	var req UpdateContentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		util.BadRequest(ctx, "content must not be blank")
		return
	}

	if err := c.ContentService.SaveContent(ctx.Request.Context(), slug, req.Content); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"courseSlug": slug, "length": len([]rune(req.Content))})
}

// ListCourses godoc
// @Summary 课程目录 (管理员)
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.CatalogCourse}
// @Router /admin/courses [get]
func (c *AdminController) ListCourses(ctx *gin.Context) {
	util.Success(ctx, c.CatalogService.List())
}

// ExportCertificates godoc
// @Summary 导出已颁发证书 (管理员)
// @Tags admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security ApiKeyAuth
// @Success 200 {file} file
// @Failure 403 {object} util.Response
// @Router /admin/certificates/export [get]
func (c *AdminController) ExportCertificates(ctx *gin.Context) {
	buf, err := c.ExportService.ExportIssued(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	filename := fmt.Sprintf("certificados_%s.xlsx", time.Now().Format("20060102_150405"))
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	ctx.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
