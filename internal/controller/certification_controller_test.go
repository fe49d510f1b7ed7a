package controller

import (
	"bytes"
	"certify_backend/internal/config"
	"certify_backend/internal/middleware"
	"certify_backend/internal/model"
	"certify_backend/internal/repository"
	"certify_backend/internal/service"
	"certify_backend/internal/util"
	"certify_backend/pkg/database"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testJWTSecret = "controller-test-jwt-secret"
	testSlug      = "ia-para-negocios"
)

type staticProvider struct {
	content string
	err     error
}

func (p *staticProvider) Complete(ctx context.Context, req service.CompletionRequest) (service.CompletionResponse, error) {
	if p.err != nil {
		return service.CompletionResponse{}, p.err
	}
	return service.CompletionResponse{Content: p.content, Model: req.Model}, nil
}

type testServer struct {
	router   *gin.Engine
	db       *gorm.DB
	svc      *service.CertificationService
	provider *staticProvider
	student  *model.User
	admin    *model.User
}

func generatedQuestions(n int) string {
	qs := make([]model.QuizQuestion, n)
	for i := range qs {
		qs[i] = model.QuizQuestion{
			Question:     fmt.Sprintf("Questão %d?", i+1),
			Options:      []string{"um", "dois", "três", "quatro"},
			CorrectIndex: (i + 2) % 4,
		}
	}
	data, _ := json.Marshal(qs)
	return string(data)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	users := repository.NewUserRepository(db)
	student := &model.User{Name: "Carlos", Email: "carlos@example.com", Role: model.Student}
	admin := &model.User{Name: "Admin", Email: "admin@example.com", Role: model.Admin}
	require.NoError(t, users.Create(ctx, student))
	require.NoError(t, users.Create(ctx, admin))

	contents := repository.NewContentRepository(db)
	require.NoError(t, contents.Upsert(ctx, &model.CourseContent{
		CourseSlug: testSlug,
		Content:    strings.Repeat("Automação com IA reduz custos operacionais e melhora o atendimento. ", 8),
	}))

	provider := &staticProvider{content: generatedQuestions(10)}
	questions, err := service.NewQuestionService(service.NewModelChain(provider, []string{"m1"}), 1000, 0.5)
	require.NoError(t, err)
	tokens, err := service.NewAnswersTokenCodec("controller-test-token-secret", time.Hour)
	require.NoError(t, err)

	catalog := service.NewCatalogService([]model.CatalogCourse{{Slug: testSlug, Title: "IA para Negócios", Level: "Avançado", Duration: "6 horas"}})
	contentSvc := service.NewContentService(contents, nil, 0)
	certRepo := repository.NewCertificateRepository(db)
	svc := service.NewCertificationService(catalog, repository.NewProgressRepository(db), contentSvc, certRepo, users, questions, tokens, config.DefaultCertification())

	cfg := &config.Config{JWT: config.JWTConfig{Secret: testJWTSecret}}
	cert := NewCertificationController(svc)
	adm := NewAdminController(catalog, contentSvc, service.NewExportService(certRepo))

	r := gin.New()
	r.GET("/api/certificates/verify/:code", cert.VerifyCertificate)
	api := r.Group("/api", middleware.AuthMiddleware(cfg))
	api.GET("/courses/:slug/quiz", cert.RequestQuiz)
	api.POST("/courses/:slug/quiz", cert.SubmitQuiz)
	api.GET("/courses/:slug/certificate", cert.GetCertificate)
	api.GET("/certificates", cert.ListCertificates)
	adminGroup := r.Group("/api/admin", middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	adminGroup.PUT("/courses/:slug/content", adm.UpdateCourseContent)
	adminGroup.GET("/certificates/export", adm.ExportCertificates)

	return &testServer{router: r, db: db, svc: svc, provider: provider, student: student, admin: admin}
}

func (s *testServer) setProgress(t *testing.T, percent float64) {
	t.Helper()
	require.NoError(t, s.db.Create(&model.CourseProgress{
		UserID:          s.student.ID,
		CourseSlug:      testSlug,
		ProgressPercent: percent,
		StartedAt:       time.Now().Add(-3 * time.Hour),
		LastUpdatedAt:   time.Now(),
	}).Error)
}

func (s *testServer) do(t *testing.T, method, path string, user *model.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := util.GenerateJWT(user, config.JWTConfig{Secret: testJWTSecret}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestQuizRequiresAuthentication(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/courses/"+testSlug+"/quiz", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/courses/"+testSlug+"/quiz", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQuizForbiddenBelowThreshold(t *testing.T) {
	s := newTestServer(t)
	s.setProgress(t, 55)

	w := s.do(t, http.MethodGet, "/api/courses/"+testSlug+"/quiz", s.student, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, 55.0, body["currentProgress"])
	assert.Equal(t, 100.0, body["requiredProgress"])
	assert.NotEmpty(t, body["error"])
}

func TestQuizUnknownCourse(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/courses/nao-existe/quiz", s.student, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuizGenerationFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t)
	s.setProgress(t, 100)
	s.provider.content = "sem perguntas"

	w := s.do(t, http.MethodGet, "/api/courses/"+testSlug+"/quiz", s.student, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestQuizFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.setProgress(t, 100)

	w := s.do(t, http.MethodGet, "/api/courses/"+testSlug+"/quiz", s.student, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var quiz struct {
		Data service.QuizResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quiz))
	assert.Equal(t, util.QuizStatusReady, quiz.Data.Status)
	require.Len(t, quiz.Data.Questions, 10)
	assert.NotContains(t, w.Body.String(), "correctAnswer")

	answers := make([]int, 10)
	for i := range answers {
		answers[i] = (i + 2) % 4
	}
	w = s.do(t, http.MethodPost, "/api/courses/"+testSlug+"/quiz", s.student, service.SubmitQuizRequest{
		Answers:      answers,
		AnswersToken: quiz.Data.AnswersToken,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Data service.SubmitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, util.QuizStatusPassed, result.Data.Status)
	require.NotNil(t, result.Data.Certificate)

	// 同一令牌重复提交只返回已颁发
	w = s.do(t, http.MethodPost, "/api/courses/"+testSlug+"/quiz", s.student, service.SubmitQuizRequest{
		Answers:      answers,
		AnswersToken: quiz.Data.AnswersToken,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), util.QuizStatusAlreadyIssued)

	w = s.do(t, http.MethodGet, "/api/courses/"+testSlug+"/certificate", s.student, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/certificates/verify/"+result.Data.Certificate.VerificationCode, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), result.Data.Certificate.CertificateNumber)

	w = s.do(t, http.MethodGet, "/api/certificates", s.student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), result.Data.Certificate.CertificateNumber)
}

func TestSubmitErrors(t *testing.T) {
	s := newTestServer(t)
	s.setProgress(t, 100)
	path := "/api/courses/" + testSlug + "/quiz"

	w := s.do(t, http.MethodPost, path, s.student, service.SubmitQuizRequest{Answers: []int{0}, AnswersToken: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code, "quiz not started")

	w = s.do(t, http.MethodPost, path, s.student, `{"answers": "nope"`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "malformed body")

	w = s.do(t, http.MethodGet, path, s.student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var quiz struct {
		Data service.QuizResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quiz))

	w = s.do(t, http.MethodPost, path, s.student, service.SubmitQuizRequest{Answers: []int{0, 1}, AnswersToken: quiz.Data.AnswersToken})
	assert.Equal(t, http.StatusBadRequest, w.Code, "wrong answer count")

	w = s.do(t, http.MethodPost, path, s.student, service.SubmitQuizRequest{Answers: make([]int, 10), AnswersToken: "forjado"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "forged token")

	w = s.do(t, http.MethodPost, path, s.student, service.SubmitQuizRequest{Answers: make([]int, 10), AnswersToken: quiz.Data.AnswersToken})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, path, s.student, service.SubmitQuizRequest{Answers: make([]int, 10), AnswersToken: quiz.Data.AnswersToken})
	assert.Equal(t, http.StatusConflict, w.Code, "stale token")
}

func TestSubmitAfterAttemptsExhausted(t *testing.T) {
	s := newTestServer(t)
	s.setProgress(t, 100)
	path := "/api/courses/" + testSlug + "/quiz"

	wrong := make([]int, 10)
	for i := range wrong {
		wrong[i] = (i + 3) % 4
	}
	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodGet, path, s.student, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var quiz struct {
			Data service.QuizResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quiz))
		w = s.do(t, http.MethodPost, path, s.student, service.SubmitQuizRequest{Answers: wrong, AnswersToken: quiz.Data.AnswersToken})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := s.do(t, http.MethodGet, path, s.student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), util.QuizStatusMaxAttemptsReached)

	w = s.do(t, http.MethodPost, path, s.student, service.SubmitQuizRequest{Answers: wrong, AnswersToken: "x"})
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, 3.0, body["totalAttempts"])
	assert.Equal(t, 3.0, body["maxAttempts"])
}

func TestVerifyUnknownCode(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/certificates/verify/ZZZZZZZZZZ", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/admin/certificates/export", s.student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/certificates/export", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.NotZero(t, w.Body.Len())

	w = s.do(t, http.MethodPut, "/api/admin/courses/"+testSlug+"/content", s.admin, UpdateContentRequest{Content: "Novo conteúdo"})
	require.Equal(t, http.StatusOK, w.Code)
	got, _, err := s.svc.Content.GetContent(context.Background(), testSlug)
	require.NoError(t, err)
	assert.Equal(t, "Novo conteúdo", got)

	w = s.do(t, http.MethodPut, "/api/admin/courses/nao-existe/content", s.admin, UpdateContentRequest{Content: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/courses/"+testSlug+"/content", s.admin, UpdateContentRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
