package log

import (
	logrus "github.com/sirupsen/logrus"
)

// The coordinator logs stage-prefixed messages ("[Phase]: ...",
// "[Rollback]: ...") and attaches the execution id as a structured field
// wherever one is in scope; WithExecution builds that entry.

// WithExecution return an entry carrying the execution id, for call sites
// that emit several lines about the same execution
func WithExecution(executionID string) *logrus.Entry {
	return logrus.WithField("execution_id", executionID)
}

// InfoWithValues log the operational entries with extra key value pairs
func InfoWithValues(msg string, val logrus.Fields) {
	logrus.WithFields(val).Info(msg)
}

//Warn log the Non-critical entries that deserve eyes.
func Warn(msg string) {
	logrus.Warn(msg)
}

//Warnf log the Non-critical entries that deserve eyes.
func Warnf(msg string, val ...interface{}) {
	logrus.Warnf(msg, val...)
}

//Errorf used for errors that should definitely be noted.
func Errorf(msg string, err ...interface{}) {
	logrus.Errorf(msg, err...)
}

//Error used for errors that should definitely be noted.
func Error(msg string) {
	logrus.Error(msg)
}
