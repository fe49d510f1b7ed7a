package util

import "errors"

var (
	ErrCourseNotFound       = errors.New("course not found")
	ErrContentNotFound      = errors.New("course content not found")
	ErrContentNotReady      = errors.New("course content is not ready for assessment")
	ErrQuizNotStarted       = errors.New("quiz not started, request the quiz first")
	ErrMaxAttemptsReached   = errors.New("maximum quiz attempts reached, contact support")
	ErrInvalidAnswersToken  = errors.New("invalid answers token")
	ErrStaleAnswersToken    = errors.New("answers token does not match the current attempt")
	ErrInvalidAnswers       = errors.New("answers do not match the issued questions")
	ErrConcurrentSubmission = errors.New("another submission for this quiz was processed first")
	ErrCertificateNotFound  = errors.New("certificate not found")
)

// ErrQuestionGeneration 所有模型都未能生成合格题目
var ErrQuestionGeneration = errors.New("question generation failed")
