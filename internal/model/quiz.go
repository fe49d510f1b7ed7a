package model

// QuizQuestion 生成的题目，正确答案不下发给客户端
type QuizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctAnswer"`
}

// PublicQuestion 下发给客户端的题目
type PublicQuestion struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// SubmittedQuestion 客户端提交时回传的题目
type SubmittedQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}
