package service

import (
	"certify_backend/internal/config"
	"certify_backend/internal/model"
	"certify_backend/internal/repository"
	"certify_backend/pkg/database"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testCourseSlug = "dropshipping-do-zero"

var testCourse = model.CatalogCourse{
	Slug:          testCourseSlug,
	ID:            "1",
	Title:         "Dropshipping do Zero",
	Level:         "Iniciante",
	Duration:      "8 horas",
	DurationHours: 8,
	LessonCount:   24,
	SectionCount:  6,
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接独立，固定单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// fakeProvider 按模型名返回预设输出，并记录调用顺序
type fakeProvider struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{replies: map[string]string{}, errs: map[string]error{}}
}

func (p *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req.Model)
	if err, ok := p.errs[req.Model]; ok {
		return CompletionResponse{}, err
	}
	reply, ok := p.replies[req.Model]
	if !ok {
		return CompletionResponse{}, &ProviderError{Reason: FailureStatus, Status: 404, Err: errors.New("unknown model")}
	}
	return CompletionResponse{Content: reply, Model: req.Model}, nil
}

func (p *fakeProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func questionsJSON(t *testing.T, n int) string {
	t.Helper()
	qs := make([]model.QuizQuestion, n)
	for i := range qs {
		qs[i] = model.QuizQuestion{
			Question:     fmt.Sprintf("Pergunta %d sobre o curso?", i+1),
			Options:      []string{fmt.Sprintf("A%d", i), fmt.Sprintf("B%d", i), fmt.Sprintf("C%d", i), fmt.Sprintf("D%d", i)},
			CorrectIndex: i % 4,
		}
	}
	data, err := json.Marshal(qs)
	require.NoError(t, err)
	return string(data)
}

func testContent() string {
	return strings.Repeat("Neste módulo aprendemos a escolher fornecedores e calcular margens. ", 10)
}

type fixture struct {
	db       *gorm.DB
	svc      *CertificationService
	provider *fakeProvider
	user     *model.User
	progress *model.CourseProgress
	contents *repository.ContentRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := newTestDB(t)

	user := &model.User{Name: "Maria Souza", Email: "maria@example.com", Role: model.Student}
	require.NoError(t, repository.NewUserRepository(db).Create(ctx, user))

	now := time.Now()
	progress := &model.CourseProgress{
		UserID:          user.ID,
		CourseSlug:      testCourseSlug,
		ProgressPercent: 100,
		StartedAt:       now.Add(-5 * time.Hour),
		LastUpdatedAt:   now,
		TotalSections:   6,
	}
	require.NoError(t, db.Create(progress).Error)

	contents := repository.NewContentRepository(db)
	require.NoError(t, contents.Upsert(ctx, &model.CourseContent{CourseSlug: testCourseSlug, Content: testContent()}))

	provider := newFakeProvider()
	provider.replies["model-a"] = questionsJSON(t, 10)

	questions, err := NewQuestionService(NewModelChain(provider, []string{"model-a", "model-b"}), 2000, 0.2)
	require.NoError(t, err)

	tokens, err := NewAnswersTokenCodec("test-token-secret", time.Hour)
	require.NoError(t, err)

	policy := config.DefaultCertification()
	policy.VerifyBaseURL = "https://certify.example.com/verificar/"

	svc := NewCertificationService(
		NewCatalogService([]model.CatalogCourse{testCourse}),
		repository.NewProgressRepository(db),
		NewContentService(contents, nil, 0),
		repository.NewCertificateRepository(db),
		repository.NewUserRepository(db),
		questions,
		tokens,
		policy,
	)

	return &fixture{db: db, svc: svc, provider: provider, user: user, progress: progress, contents: contents}
}

// correctAnswers 从令牌中取出正确答案
func (f *fixture) correctAnswers(t *testing.T, token string) []int {
	t.Helper()
	p, err := f.svc.Tokens.Decode(token)
	require.NoError(t, err)
	return p.Answers
}

func wrongAnswers(correct []int) []int {
	out := make([]int, len(correct))
	for i, c := range correct {
		out[i] = (c + 1) % 4
	}
	return out
}

func (f *fixture) record(t *testing.T) *model.CertificateRecord {
	t.Helper()
	rec, err := f.svc.CertRepo.FindByUserAndCourse(context.Background(), f.user.ID, testCourseSlug)
	require.NoError(t, err)
	return rec
}

func (f *fixture) reloadUser(t *testing.T) *model.User {
	t.Helper()
	u, err := f.svc.UserRepo.FindByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}
