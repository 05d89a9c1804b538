package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a component-scoped zerolog logger.
type Logger struct {
	*zerolog.Logger
	component string
}

var logLevel = map[string]zerolog.Level{
	"development": zerolog.DebugLevel,
	"test":        zerolog.WarnLevel,
	"staging":     zerolog.InfoLevel,
	"production":  zerolog.InfoLevel,
}

type Config struct {
	AppEnv string
	Out    io.Writer
}

// New creates a logger for a component using APP_ENV from the environment.
func New(component string) *Logger {
	return NewWithConfig(component, Config{AppEnv: os.Getenv("APP_ENV")})
}

// NewWithConfig builds a logger. Production writes JSON lines, everything else
// gets the colored console format.
func NewWithConfig(component string, config Config) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	out := config.Out
	if out == nil {
		out = os.Stdout
	}

	var logger zerolog.Logger
	if config.AppEnv == "production" {
		logger = zerolog.New(out).
			Level(levelFor(config.AppEnv)).
			With().
			Timestamp().
			Str("component", component).
			Logger()
	} else {
		logger = zerolog.New(consoleWriter(component, out)).
			Level(levelFor(config.AppEnv)).
			With().
			Timestamp().
			Logger()
	}
	return &Logger{Logger: &logger, component: component}
}

func consoleWriter(component string, out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("[%s] %s", component, i)
		},
		FormatLevel: func(i interface{}) string {
			level, ok := i.(string)
			if !ok {
				return "???"
			}
			switch level {
			case "debug":
				return "\033[36m[DEBUG]\033[0m"
			case "info":
				return "\033[34m[INFO]\033[0m"
			case "warn":
				return "\033[33m[WARN]\033[0m"
			case "error":
				return "\033[31m[ERROR]\033[0m"
			case "fatal":
				return "\033[35m[FATAL]\033[0m"
			default:
				return fmt.Sprintf("[%s]", level)
			}
		},
	}
}

func levelFor(env string) zerolog.Level {
	if level, ok := logLevel[env]; ok {
		return level
	}
	return zerolog.DebugLevel
}

// Component returns the name the logger was created with.
func (l *Logger) Component() string { return l.component }

// ForJob returns a child logger that tags every event with the job id.
func (l *Logger) ForJob(jobID string) *Logger {
	child := l.Logger.With().Str("job_id", jobID).Logger()
	return &Logger{Logger: &child, component: l.component}
}

func (l *Logger) Success() *zerolog.Event { return l.Logger.Info().Str("outcome", "success") }

func (l *Logger) LogDebugf(format string, v ...interface{}) { l.Debug().Msgf(format, v...) }
func (l *Logger) LogInfof(format string, v ...interface{})  { l.Info().Msgf(format, v...) }
func (l *Logger) LogWarnf(format string, v ...interface{})  { l.Warn().Msgf(format, v...) }
func (l *Logger) LogErrorf(format string, v ...interface{}) { l.Error().Msgf(format, v...) }
func (l *Logger) LogFatalf(format string, v ...interface{}) { l.Fatal().Msgf(format, v...) }

func (l *Logger) LogSuccessf(format string, v ...interface{}) { l.Success().Msgf(format, v...) }

func (l *Logger) LogInfo(msg string) { l.Info().Msg(msg) }

func (l *Logger) LogError(msg string, err error) {
	if err != nil {
		l.Error().Err(err).Msg(msg)
		return
	}
	l.Error().Msg(msg)
}

// WithFields starts an info event carrying the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *zerolog.Event {
	return l.Info().Fields(fields)
}
