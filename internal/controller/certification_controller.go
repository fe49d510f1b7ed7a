package controller

import (
	"certify_backend/internal/service"
	"certify_backend/internal/util"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type CertificationController struct {
	CertificationService *service.CertificationService
}

func NewCertificationController(certificationService *service.CertificationService) *CertificationController {
	return &CertificationController{CertificationService: certificationService}
}

// respondError 将业务错误映射为 HTTP 状态码
func respondError(ctx *gin.Context, err error) {
	var eligibility *service.EligibilityError
	var exhausted *service.AttemptsExhaustedError

	switch {
	case errors.As(err, &eligibility):
		util.ErrorWithDetails(ctx, http.StatusForbidden, "Você precisa concluir o curso para fazer a prova de certificação", gin.H{
			"currentProgress":  eligibility.CurrentProgress,
			"requiredProgress": eligibility.RequiredProgress,
		})
	case errors.As(err, &exhausted):
		util.ErrorWithDetails(ctx, http.StatusForbidden, "Número máximo de tentativas atingido. Entre em contato com o suporte.", gin.H{
			"totalAttempts": exhausted.TotalAttempts,
			"maxAttempts":   exhausted.MaxAttempts,
			"lastScore":     exhausted.LastScore,
		})
	case errors.Is(err, util.ErrCourseNotFound),
		errors.Is(err, util.ErrContentNotFound),
		errors.Is(err, util.ErrCertificateNotFound),
		errors.Is(err, util.ErrQuizNotStarted):
		util.Error(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, util.ErrContentNotReady),
		errors.Is(err, util.ErrInvalidAnswersToken),
		errors.Is(err, util.ErrInvalidAnswers):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrStaleAnswersToken),
		errors.Is(err, util.ErrConcurrentSubmission):
		util.Error(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, util.ErrQuestionGeneration):
		util.Error(ctx, http.StatusBadGateway, "Não foi possível gerar as perguntas da prova. Tente novamente em instantes.")
	default:
		util.LogInternalError(ctx, err)
	}
}

// RequestQuiz godoc
// @Summary 获取证书考试题目
// @Description 学习进度达标后生成选择题，返回题目和加密的答案令牌
// @Tags certification
// @Produce json
// @Security ApiKeyAuth
// @Param slug path string true "课程 slug"
// @Success 200 {object} util.Response{data=service.QuizResponse}
// @Failure 400 {object} util.Response "课程内容不足"
// @Failure 401 {object} util.Response
// @Failure 403 {object} util.Response "进度不足"
// @Failure 404 {object} util.Response
// @Failure 502 {object} util.Response "题目生成失败"
// @Router /courses/{slug}/quiz [get]
func (c *CertificationController) RequestQuiz(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	resp, err := c.CertificationService.RequestQuiz(ctx.Request.Context(), claims.UserID, ctx.Param("slug"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, resp)
}

// SubmitQuiz godoc
// @Summary 提交证书考试答案
// @Description 评分并记录作答，通过时颁发证书
// @Tags certification
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param slug path string true "课程 slug"
// @Param request body service.SubmitQuizRequest true "答案"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Failure 400 {object} util.Response
// @Failure 401 {object} util.Response
// @Failure 403 {object} util.Response "次数用尽"
// @Failure 404 {object} util.Response "未开始考试"
// @Failure 409 {object} util.Response "令牌过期或并发提交"
// @Router /courses/{slug}/quiz [post]
func (c *CertificationController) SubmitQuiz(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.SubmitQuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "Respostas inválidas: "+err.Error())
		return
	}

	result, err := c.CertificationService.SubmitQuiz(ctx.Request.Context(), claims.UserID, ctx.Param("slug"), req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// GetCertificate godoc
// @Summary 查看课程证书记录
// @Tags certification
// @Produce json
// @Security ApiKeyAuth
// @Param slug path string true "课程 slug"
// @Success 200 {object} util.Response{data=model.CertificateRecord}
// @Failure 401 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /courses/{slug}/certificate [get]
func (c *CertificationController) GetCertificate(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	rec, err := c.CertificationService.GetCertificate(ctx.Request.Context(), claims.UserID, ctx.Param("slug"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, rec)
}

// ListCertificates godoc
// @Summary 我的证书列表
// @Tags certification
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]service.CertificateView}
// @Failure 401 {object} util.Response
// @Router /certificates [get]
func (c *CertificationController) ListCertificates(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	views, err := c.CertificationService.ListCertificates(ctx.Request.Context(), claims.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, views)
}

// VerifyCertificate godoc
// @Summary 公开校验证书
// @Tags certification
// @Produce json
// @Param code path string true "校验码"
// @Success 200 {object} util.Response{data=service.CertificateView}
// @Failure 404 {object} util.Response
// @Router /certificates/verify/{code} [get]
func (c *CertificationController) VerifyCertificate(ctx *gin.Context) {
	view, err := c.CertificationService.VerifyCertificate(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, view)
}
