package logging

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// AsynqLogger routes asynq's internal logging through zerolog.
type AsynqLogger struct {
	log zerolog.Logger
}

var _ asynq.Logger = AsynqLogger{}

// NewAsynqLogger adapts l to asynq.Logger.
func NewAsynqLogger(l zerolog.Logger) AsynqLogger {
	return AsynqLogger{log: l}
}

func (a AsynqLogger) Debug(args ...any) { a.log.Debug().Msg(fmt.Sprint(args...)) }
func (a AsynqLogger) Info(args ...any)  { a.log.Info().Msg(fmt.Sprint(args...)) }
func (a AsynqLogger) Warn(args ...any)  { a.log.Warn().Msg(fmt.Sprint(args...)) }
func (a AsynqLogger) Error(args ...any) { a.log.Error().Msg(fmt.Sprint(args...)) }

// Fatal records a fatal-level line without exiting; asynq handles shutdown.
func (a AsynqLogger) Fatal(args ...any) { a.log.WithLevel(zerolog.FatalLevel).Msg(fmt.Sprint(args...)) }
