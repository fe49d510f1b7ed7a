package service

import (
	"certify_backend/internal/config"
	"certify_backend/internal/model"
	"certify_backend/internal/repository"
	"certify_backend/internal/util"
	"certify_backend/pkg/logger"
	"certify_backend/pkg/monitoring"
	"certify_backend/pkg/tracing"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ContentSource 课程正文来源
type ContentSource interface {
	GetContent(ctx context.Context, courseSlug string) (string, bool, error)
}

// QuestionGenerator 题目生成
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, content, courseTitle string, opts GenerationOptions) ([]model.QuizQuestion, error)
}

// EligibilityError 学习进度不足
type EligibilityError struct {
	CurrentProgress  float64
	RequiredProgress float64
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("course progress %.0f%% is below the required %.0f%%", e.CurrentProgress, e.RequiredProgress)
}

// AttemptsExhaustedError 提交时次数已用尽
type AttemptsExhaustedError struct {
	TotalAttempts int
	MaxAttempts   int
	LastScore     int
}

func (e *AttemptsExhaustedError) Error() string {
	return fmt.Sprintf("%v (%d/%d)", util.ErrMaxAttemptsReached, e.TotalAttempts, e.MaxAttempts)
}

func (e *AttemptsExhaustedError) Unwrap() error {
	return util.ErrMaxAttemptsReached
}

type QuizConfigView struct {
	TotalQuestions    int `json:"totalQuestions"`
	PassingScore      int `json:"passingScore"`
	MaxAttempts       int `json:"maxAttempts"`
	CurrentAttempt    int `json:"currentAttempt"`
	RemainingAttempts int `json:"remainingAttempts"`
}

// CertificateView 证书对外展示信息
type CertificateView struct {
	CertificateNumber string    `json:"certificateNumber"`
	VerificationCode  string    `json:"verificationCode"`
	VerificationURL   string    `json:"verificationUrl"`
	IssuedAt          time.Time `json:"issuedAt"`
	CourseSlug        string    `json:"courseSlug"`
	CourseTitle       string    `json:"courseTitle"`
	CourseLevel       string    `json:"courseLevel"`
	CourseDuration    string    `json:"courseDuration"`
	StudentName       string    `json:"studentName"`
	TotalStudyHours   int       `json:"totalStudyHours"`
	QuizScore         int       `json:"quizScore"`
}

type QuizResponse struct {
	Status        string                 `json:"status"`
	Questions     []model.PublicQuestion `json:"questions,omitempty"`
	AnswersToken  string                 `json:"answersToken,omitempty"`
	Config        *QuizConfigView        `json:"config,omitempty"`
	CourseTitle   string                 `json:"courseTitle,omitempty"`
	Certificate   *CertificateView       `json:"certificate,omitempty"`
	TotalAttempts *int                   `json:"totalAttempts,omitempty"`
	MaxAttempts   *int                   `json:"maxAttempts,omitempty"`
	LastScore     *int                   `json:"lastScore,omitempty"`
}

type SubmitQuizRequest struct {
	Answers      []int                     `json:"answers" binding:"required"`
	AnswersToken string                    `json:"answersToken" binding:"required"`
	Questions    []model.SubmittedQuestion `json:"questions"`
}

type SubmitResult struct {
	Status            string                 `json:"status"`
	Message           string                 `json:"message,omitempty"`
	Score             *int                   `json:"score,omitempty"`
	CorrectCount      *int                   `json:"correctCount,omitempty"`
	TotalQuestions    *int                   `json:"totalQuestions,omitempty"`
	PassingScore      *int                   `json:"passingScore,omitempty"`
	RemainingAttempts *int                   `json:"remainingAttempts,omitempty"`
	Certificate       *CertificateView       `json:"certificate,omitempty"`
	QuestionResults   []model.QuestionResult `json:"questionResults,omitempty"`
	XPEarned          *int                   `json:"xpEarned,omitempty"`
}

func intPtr(v int) *int {
	return &v
}

type CertificationService struct {
	Catalog      *CatalogService
	ProgressRepo *repository.ProgressRepository
	Content      ContentSource
	CertRepo     *repository.CertificateRepository
	UserRepo     *repository.UserRepository
	Questions    QuestionGenerator
	Tokens       *AnswersTokenCodec
	Storage      *StorageService
	Notifier     IssuanceNotifier

	policy atomic.Pointer[config.CertificationConfig]
	now    func() time.Time
}

func NewCertificationService(
	catalog *CatalogService,
	progressRepo *repository.ProgressRepository,
	content ContentSource,
	certRepo *repository.CertificateRepository,
	userRepo *repository.UserRepository,
	questions QuestionGenerator,
	tokens *AnswersTokenCodec,
	policy config.CertificationConfig,
) *CertificationService {
	s := &CertificationService{
		Catalog:      catalog,
		ProgressRepo: progressRepo,
		Content:      content,
		CertRepo:     certRepo,
		UserRepo:     userRepo,
		Questions:    questions,
		Tokens:       tokens,
		now:          time.Now,
	}
	s.UpdatePolicy(policy)
	return s
}

func (s *CertificationService) Policy() config.CertificationConfig {
	return *s.policy.Load()
}

// UpdatePolicy 配置热更新时替换策略
func (s *CertificationService) UpdatePolicy(p config.CertificationConfig) {
	s.policy.Store(&p)
}

// RequestQuiz 校验资格并下发题目
func (s *CertificationService) RequestQuiz(ctx context.Context, userID uint, courseSlug string) (*QuizResponse, error) {
	ctx, span := tracing.Tracer.Start(ctx, "certification.request_quiz")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", int64(userID)), attribute.String("course.slug", courseSlug))

	resp, err := s.requestQuiz(ctx, userID, courseSlug)
	outcome := "error"
	switch {
	case err == nil:
		outcome = resp.Status
	case errors.As(err, new(*EligibilityError)):
		outcome = "ineligible"
	}
	monitoring.QuizRequests.WithLabelValues(outcome).Inc()
	if err != nil {
		span.RecordError(err)
	}
	return resp, err
}

func (s *CertificationService) requestQuiz(ctx context.Context, userID uint, courseSlug string) (*QuizResponse, error) {
	policy := s.Policy()

	course, ok := s.Catalog.Get(courseSlug)
	if !ok {
		return nil, util.ErrCourseNotFound
	}

	progress, err := s.ProgressRepo.FindByUserAndCourse(ctx, userID, courseSlug)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	current := 0.0
	if progress != nil {
		current = progress.ProgressPercent
	}
	if progress == nil || current < policy.MinProgressPercent {
		return nil, &EligibilityError{CurrentProgress: current, RequiredProgress: policy.MinProgressPercent}
	}

	rec, err := s.CertRepo.FindByUserAndCourse(ctx, userID, courseSlug)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}

	if rec != nil && rec.IsIssued() {
		view, err := s.certificateView(ctx, rec)
		if err != nil {
			return nil, err
		}
		return &QuizResponse{Status: util.QuizStatusAlreadyIssued, Certificate: view}, nil
	}

	if rec != nil && rec.AttemptsExhausted(policy.MaxAttempts) {
		return &QuizResponse{
			Status:        util.QuizStatusMaxAttemptsReached,
			TotalAttempts: intPtr(rec.TotalQuizAttempts),
			MaxAttempts:   intPtr(policy.MaxAttempts),
			LastScore:     intPtr(rec.QuizScore),
		}, nil
	}

	content, found, err := s.Content.GetContent(ctx, courseSlug)
	if err != nil {
		return nil, fmt.Errorf("load course content: %w", err)
	}
	if !found {
		return nil, util.ErrContentNotFound
	}
	if len([]rune(strings.TrimSpace(content))) < policy.MinContentLength {
		return nil, util.ErrContentNotReady
	}

	questions, err := s.Questions.GenerateQuestions(ctx, content, course.Title, GenerationOptions{
		Count:           policy.TotalQuestions,
		MinCount:        policy.MinGeneratedQuestions,
		MaxContentChars: policy.MaxContentChars,
	})
	if err != nil {
		logger.Log.Error("question generation failed",
			zap.Uint("userID", userID),
			zap.String("course", courseSlug),
			zap.Error(err),
		)
		return nil, err
	}

	if rec == nil {
		rec, err = s.CertRepo.CreateIfAbsent(ctx, &model.CertificateRecord{
			UserID:              userID,
			CourseSlug:          courseSlug,
			Course:              model.NewCourseSnapshot(course),
			Status:              model.CertificateQuizInProgress,
			ProgressStartedAt:   progress.StartedAt,
			ProgressCompletedAt: progress.LastUpdatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("create certificate record: %w", err)
		}
	}

	correct := make([]int, len(questions))
	public := make([]model.PublicQuestion, len(questions))
	for i, q := range questions {
		correct[i] = q.CorrectIndex
		public[i] = model.PublicQuestion{ID: i + 1, Question: q.Question, Options: q.Options}
	}

	currentAttempt := rec.TotalQuizAttempts + 1
	token, err := s.Tokens.Encode(AnswersPayload{
		UserID:  userID,
		Course:  courseSlug,
		Attempt: currentAttempt,
		Answers: correct,
	})
	if err != nil {
		return nil, fmt.Errorf("encode answers token: %w", err)
	}

	logger.Log.Info("quiz issued",
		zap.Uint("userID", userID),
		zap.String("course", courseSlug),
		zap.Int("attempt", currentAttempt),
		zap.Int("questions", len(questions)),
	)

	return &QuizResponse{
		Status:       util.QuizStatusReady,
		Questions:    public,
		AnswersToken: token,
		Config: &QuizConfigView{
			TotalQuestions:    len(questions),
			PassingScore:      policy.PassingScore,
			MaxAttempts:       policy.MaxAttempts,
			CurrentAttempt:    currentAttempt,
			RemainingAttempts: policy.MaxAttempts - rec.TotalQuizAttempts,
		},
		CourseTitle: rec.Course.Title,
	}, nil
}

// ScoreAnswers 逐位比对答案，返回答对数量与百分制得分
func ScoreAnswers(correct, answers []int) (int, int) {
	if len(correct) == 0 {
		return 0, 0
	}
	matches := 0
	for i, c := range correct {
		if i < len(answers) && answers[i] == c {
			matches++
		}
	}
	score := int(math.Round(100 * float64(matches) / float64(len(correct))))
	return matches, score
}

// StudyHours 学习时长按小时四舍五入，至少 1 小时
func StudyHours(startedAt, lastUpdatedAt time.Time) int {
	if startedAt.IsZero() || lastUpdatedAt.Before(startedAt) {
		return 1
	}
	hours := int(math.Round(lastUpdatedAt.Sub(startedAt).Hours()))
	if hours < 1 {
		return 1
	}
	return hours
}

// SubmitQuiz 评分并记录作答，通过时颁发证书
func (s *CertificationService) SubmitQuiz(ctx context.Context, userID uint, courseSlug string, req SubmitQuizRequest) (*SubmitResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "certification.submit_quiz")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", int64(userID)), attribute.String("course.slug", courseSlug))

	res, err := s.submitQuiz(ctx, userID, courseSlug, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if res.Status == util.QuizStatusPassed || res.Status == util.QuizStatusFailed {
		monitoring.QuizSubmissions.WithLabelValues(res.Status).Inc()
	}
	return res, nil
}

func (s *CertificationService) submitQuiz(ctx context.Context, userID uint, courseSlug string, req SubmitQuizRequest) (*SubmitResult, error) {
	policy := s.Policy()

	rec, err := s.CertRepo.FindByUserAndCourse(ctx, userID, courseSlug)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	if rec == nil {
		return nil, util.ErrQuizNotStarted
	}

	if rec.IsIssued() {
		return &SubmitResult{
			Status:  util.QuizStatusAlreadyIssued,
			Message: "Certificado já emitido para este curso",
		}, nil
	}

	if rec.AttemptsExhausted(policy.MaxAttempts) {
		return nil, &AttemptsExhaustedError{
			TotalAttempts: rec.TotalQuizAttempts,
			MaxAttempts:   policy.MaxAttempts,
			LastScore:     rec.QuizScore,
		}
	}

	payload, err := s.Tokens.Decode(req.AnswersToken)
	if err != nil {
		return nil, err
	}
	if payload.UserID != userID || payload.Course != courseSlug {
		return nil, fmt.Errorf("%w: issued for another quiz", util.ErrInvalidAnswersToken)
	}
	if payload.Attempt != rec.TotalQuizAttempts+1 {
		return nil, util.ErrStaleAnswersToken
	}
	if len(req.Answers) != len(payload.Answers) {
		return nil, fmt.Errorf("%w: expected %d answers, got %d", util.ErrInvalidAnswers, len(payload.Answers), len(req.Answers))
	}

	correctCount, score := ScoreAnswers(payload.Answers, req.Answers)
	passed := score >= policy.PassingScore
	total := len(payload.Answers)

	details := make([]model.QuestionResult, total)
	for i, c := range payload.Answers {
		d := model.QuestionResult{
			SelectedIndex: req.Answers[i],
			CorrectIndex:  c,
			IsCorrect:     req.Answers[i] == c,
		}
		// 题干由客户端回传，服务端不保存
		if i < len(req.Questions) {
			d.Question = req.Questions[i].Question
			d.Options = req.Questions[i].Options
		}
		details[i] = d
	}

	now := s.now()
	attempt := model.QuizAttempt{
		AttemptNumber:  payload.Attempt,
		Details:        details,
		Score:          score,
		TotalQuestions: total,
		Passed:         passed,
	}

	write := repository.AttemptWrite{
		CertificateID:    rec.ID,
		ExpectedAttempts: rec.TotalQuizAttempts,
	}

	if passed {
		attempt.PassedAt = &now
		issuance, err := s.newIssuance(ctx, rec, now)
		if err != nil {
			return nil, err
		}
		write.Issuance = issuance
		xp := policy.XPReward
		write.OnIssued = func(tx *gorm.DB) error {
			found, err := s.UserRepo.WithTx(tx).AwardCourseCompletion(ctx, userID, xp)
			if err != nil {
				return err
			}
			if !found {
				logger.Log.Warn("reward skipped, user record missing", zap.Uint("userID", userID))
			}
			return nil
		}
	} else {
		attempt.FailedAt = &now
		write.Block = payload.Attempt >= policy.MaxAttempts
	}
	write.Attempt = attempt

	if err := s.CertRepo.RecordAttempt(ctx, write); err != nil {
		if errors.Is(err, util.ErrConcurrentSubmission) {
			return nil, err
		}
		return nil, fmt.Errorf("record quiz attempt: %w", err)
	}

	logger.Log.Info("quiz attempt recorded",
		zap.Uint("userID", userID),
		zap.String("course", courseSlug),
		zap.Int("attempt", payload.Attempt),
		zap.Int("score", score),
		zap.Bool("passed", passed),
	)

	if !passed {
		return &SubmitResult{
			Status:            util.QuizStatusFailed,
			Score:             intPtr(score),
			CorrectCount:      intPtr(correctCount),
			TotalQuestions:    intPtr(total),
			PassingScore:      intPtr(policy.PassingScore),
			RemainingAttempts: intPtr(max(policy.MaxAttempts-payload.Attempt, 0)),
			QuestionResults:   details,
		}, nil
	}

	monitoring.CertificatesIssued.Inc()

	rec.Status = model.CertificateIssued
	rec.QuizScore = score
	rec.TotalQuizAttempts = payload.Attempt
	rec.CertificateNumber = &write.Issuance.CertificateNumber
	rec.VerificationCode = &write.Issuance.VerificationCode
	rec.VerificationURL = write.Issuance.VerificationURL
	rec.IssuedAt = &write.Issuance.IssuedAt
	rec.TotalStudyHours = write.Issuance.TotalStudyHours

	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		logger.Log.Warn("load student for certificate failed", zap.Uint("userID", userID), zap.Error(err))
	}
	view := newCertificateView(rec, user)
	s.afterIssued(ctx, user, view)

	return &SubmitResult{
		Status:          util.QuizStatusPassed,
		Score:           intPtr(score),
		CorrectCount:    intPtr(correctCount),
		TotalQuestions:  intPtr(total),
		Certificate:     view,
		QuestionResults: details,
		XPEarned:        intPtr(policy.XPReward),
	}, nil
}

func (s *CertificationService) newIssuance(ctx context.Context, rec *model.CertificateRecord, now time.Time) (*repository.Issuance, error) {
	startedAt, lastUpdatedAt := rec.ProgressStartedAt, rec.ProgressCompletedAt
	progress, err := s.ProgressRepo.FindByUserAndCourse(ctx, rec.UserID, rec.CourseSlug)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if progress != nil {
		startedAt, lastUpdatedAt = progress.StartedAt, progress.LastUpdatedAt
	}

	code := verificationCode()
	return &repository.Issuance{
		CertificateNumber: certificateNumber(now),
		VerificationCode:  code,
		VerificationURL:   strings.TrimRight(s.Policy().VerifyBaseURL, "/") + "/" + code,
		IssuedAt:          now,
		TotalStudyHours:   StudyHours(startedAt, lastUpdatedAt),
	}, nil
}

func certificateNumber(now time.Time) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("CERT-%d-%s", now.Year(), strings.ToUpper(id[:8]))
}

func verificationCode() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(id[:10])
}

// afterIssued 归档与通知失败只记录日志，不影响已提交的证书
func (s *CertificationService) afterIssued(ctx context.Context, user *model.User, view *CertificateView) {
	if s.Storage != nil {
		if url, err := s.Storage.ArchiveCertificate(ctx, view); err != nil {
			logger.Log.Error("archive certificate failed", zap.String("certificateNumber", view.CertificateNumber), zap.Error(err))
		} else {
			logger.Log.Debug("certificate archived", zap.String("url", url))
		}
	}
	if s.Notifier != nil && user != nil {
		if err := s.Notifier.NotifyIssued(ctx, user.Email, view); err != nil {
			logger.Log.Error("certificate notification failed", zap.String("certificateNumber", view.CertificateNumber), zap.Error(err))
		}
	}
}

func newCertificateView(rec *model.CertificateRecord, user *model.User) *CertificateView {
	view := &CertificateView{
		VerificationURL: rec.VerificationURL,
		CourseSlug:      rec.CourseSlug,
		CourseTitle:     rec.Course.Title,
		CourseLevel:     rec.Course.Level,
		CourseDuration:  rec.Course.Duration,
		TotalStudyHours: rec.TotalStudyHours,
		QuizScore:       rec.QuizScore,
	}
	if rec.CertificateNumber != nil {
		view.CertificateNumber = *rec.CertificateNumber
	}
	if rec.VerificationCode != nil {
		view.VerificationCode = *rec.VerificationCode
	}
	if rec.IssuedAt != nil {
		view.IssuedAt = *rec.IssuedAt
	}
	if user != nil {
		view.StudentName = user.Name
	}
	return view
}

func (s *CertificationService) certificateView(ctx context.Context, rec *model.CertificateRecord) (*CertificateView, error) {
	user, err := s.UserRepo.FindByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	return newCertificateView(rec, user), nil
}

// GetCertificate 返回当前用户在该课程下的证书记录
func (s *CertificationService) GetCertificate(ctx context.Context, userID uint, courseSlug string) (*model.CertificateRecord, error) {
	rec, err := s.CertRepo.FindByUserAndCourse(ctx, userID, courseSlug)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, util.ErrCertificateNotFound
	}
	return rec, nil
}

func (s *CertificationService) ListCertificates(ctx context.Context, userID uint) ([]*CertificateView, error) {
	recs, err := s.CertRepo.ListIssuedByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*CertificateView, 0, len(recs))
	for i := range recs {
		views = append(views, newCertificateView(&recs[i], user))
	}
	return views, nil
}

// VerifyCertificate 公开校验证书
func (s *CertificationService) VerifyCertificate(ctx context.Context, code string) (*CertificateView, error) {
	rec, err := s.CertRepo.FindIssuedByVerificationCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, util.ErrCertificateNotFound
	}
	return s.certificateView(ctx, rec)
}
