package app

import (
	"certify_backend/docs"
	"certify_backend/internal/config"
	"certify_backend/internal/middleware"
	"certify_backend/internal/model"
	"certify_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerStudentRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.GET("/certificates/verify/:code", c.certification.VerifyCertificate)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	courses := group.Group("/courses/:slug")
	{
		courses.GET("/quiz", c.certification.RequestQuiz)
		courses.POST("/quiz", c.certification.SubmitQuiz)
		courses.GET("/certificate", c.certification.GetCertificate)
	}

	group.GET("/certificates", c.certification.ListCertificates)
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.GET("/courses", c.admin.ListCourses)
		admin.PUT("/courses/:slug/content", c.admin.UpdateCourseContent)
		admin.GET("/certificates/export", c.admin.ExportCertificates)
	}
}
