package util

const (
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// 考试接口返回的状态值
const (
	QuizStatusReady              = "quiz_ready"
	QuizStatusAlreadyIssued      = "already_issued"
	QuizStatusMaxAttemptsReached = "max_attempts_reached"
	QuizStatusPassed             = "passed"
	QuizStatusFailed             = "failed"
)
