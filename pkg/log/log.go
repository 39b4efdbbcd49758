package log

import (
	"context"
	"io"
	"os"
	"path"
	"sync"

	"pctasks/app/config"
	"pctasks/pkg/contextx"

	"github.com/sirupsen/logrus"
)

var (
	defaultLoggerName = "pctasks"
	loggerMu          sync.Mutex
	logger            *logrus.Logger
	workspaceID       string
)

// Initialize builds the process logger from cfg. Calling it again replaces
// the logger; callers that never call it get a stderr logger at info level.
func Initialize(cfg config.LogConfig) error {
	formatter := NewLogFormatter()
	if cfg.TimestampFormat != "" {
		formatter.TimestampFormat = cfg.TimestampFormat
	}
	if cfg.Format != "" {
		formatter.OutputFormat = cfg.Format
	}

	var out io.Writer = os.Stderr
	if cfg.DirPath != "" {
		if exists, err := PathExists(cfg.DirPath); err != nil {
			return err
		} else if !exists {
			if err := os.MkdirAll(cfg.DirPath, 0770); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(path.Join(cfg.DirPath, "pctasks.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		out = file
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(formatter)

	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
	workspaceID = cfg.WorkspaceID
	return nil
}

func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func getBaseLogger() (*logrus.Logger, string) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		logger.SetFormatter(NewLogFormatter())
	}
	return logger, workspaceID
}

// NewWriterLogger returns a logger like GetLogger's that writes to out
// instead of the process log. Task logs are captured this way.
func NewWriterLogger(out io.Writer, ctx interface{}, name string) *logrus.Entry {
	base, _ := getBaseLogger()
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(base.Formatter)
	return l.WithFields(GetLogger(ctx, name).Data)
}

// GetLogger returns an entry carrying the run/job/partition/task fields found
// in ctx. ctx may be a context.Context, a run id string or a field map.
func GetLogger(ctx interface{}, name string) *logrus.Entry {
	fields := logrus.Fields{
		"name":               name,
		contextx.RunID:       "-",
		contextx.WorkflowID:  "-",
		contextx.JobID:       "-",
		contextx.PartitionID: "-",
		contextx.TaskID:      "-",
		contextx.RequestID:   "-",
	}
	switch t := ctx.(type) {
	case string:
		fields[contextx.RunID] = t
	case context.Context:
		for k, v := range contextx.FieldsFrom(t) {
			fields[k] = v
		}
	case map[string]interface{}:
		for k, v := range t {
			fields[k] = v
		}
	}
	base, ws := getBaseLogger()
	if ws != "" {
		fields["workspace_id"] = ws
	}
	return base.WithFields(fields)
}

func Info(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Info(args...)
}

func Debug(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Debug(args...)
}

func Trace(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Trace(args...)
}

func Warn(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Warn(args...)
}

func Panic(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Panic(args...)
}

func Error(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Error(args...)
}

func Infof(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Infof(format, args...)
}

func Debugf(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Debugf(format, args...)
}

func Tracef(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Tracef(format, args...)
}

func Warnf(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Warnf(format, args...)
}

func Panicf(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Panicf(format, args...)
}

func Errorf(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Errorf(format, args...)
}
