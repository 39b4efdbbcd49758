package log

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/sirupsen/logrus"
)

const (
	defaultTimestampFormat = "2006-01-02 15:04:05.000"
	defaultFormat          = "{{.timestamp}} {{.pid}} [{{.name}}] [{{.levelname}}] [{{.run_id}} {{.job_id}}] {{.message}}"
)

type LogFormatter struct {
	TimestampFormat string
	OutputFormat    string

	once sync.Once
	tmpl *template.Template
	err  error
}

func NewLogFormatter() *LogFormatter {
	return &LogFormatter{
		TimestampFormat: defaultTimestampFormat,
		OutputFormat:    defaultFormat,
	}
}

func (f *LogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer

	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	data := map[string]interface{}{
		"timestamp": entry.Time.Format(f.TimestampFormat),
		"pid":       os.Getpid(),
		"levelname": strings.ToUpper(entry.Level.String()),
		"message":   entry.Message,
	}
	for key, value := range entry.Data {
		data[key] = value
	}

	f.once.Do(func() {
		f.tmpl, f.err = template.New("").Option("missingkey=zero").Parse(f.OutputFormat)
	})
	if f.err != nil {
		return nil, f.err
	}
	if err := f.tmpl.Execute(b, data); err != nil {
		return nil, err
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}
