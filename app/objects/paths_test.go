package objects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskPaths(t *testing.T) {
	asserter := assert.New(t)

	asserter.Equal("logs/r/J/0/t/task-log.txt", TaskLogPath("r", "J", "0", "t"))
	asserter.Equal("run/r/J/0/t/input", TaskInputPath("r", "J", "0", "t"))
	asserter.Equal("run/r/J/0/t/output", TaskOutputPath("r", "J", "0", "t"))
	asserter.Equal("run/r/J/0/t/status/status-ab12.txt", TaskStatusPath(TaskStatusPrefix("r", "J", "0", "t"), "ab12"))
	asserter.Equal("code/deadbeef/bundle.zip", CodePath("deadbeef", "/home/me/bundle.zip"))
}
