package objects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskRunMessage_RoundTrip(t *testing.T) {
	asserter := assert.New(t)

	msg := &TaskRunMessage{
		WorkflowID:   "wf",
		RunID:        "0a1b2c",
		JobID:        "J2",
		PartitionID:  "3f786850e387",
		TaskID:       "T",
		Image:        "pctasks/task:latest",
		Task:         "pctasks.standard:echo",
		Args:         map[string]interface{}{"value": "a", "list": []interface{}{"x", float64(1)}},
		InputPath:    TaskInputPath("0a1b2c", "J2", "3f786850e387", "T"),
		OutputPath:   TaskOutputPath("0a1b2c", "J2", "3f786850e387", "T"),
		LogPath:      TaskLogPath("0a1b2c", "J2", "3f786850e387", "T"),
		StatusPrefix: TaskStatusPrefix("0a1b2c", "J2", "3f786850e387", "T"),
		Tokens:       map[string]string{"acct/container": "token"},
		Attempt:      1,
	}

	encoded, err := msg.Encode()
	if asserter.NoError(err) {
		decoded, err := DecodeTaskRunMessage(encoded)
		if asserter.NoError(err) {
			asserter.Equal(msg, decoded)
		}
	}

	_, err = DecodeTaskRunMessage("not base64!")
	asserter.Error(err)
}

func TestTriggerEvent_Scope(t *testing.T) {
	asserter := assert.New(t)

	e := &TriggerEvent{Kind: "blob-created", Subject: "container/a.tif", Payload: map[string]interface{}{"url": "u"}}
	scope := e.Scope()
	asserter.Equal("blob-created", scope["kind"])
	asserter.Equal("u", scope["url"])
	asserter.Equal(map[string]interface{}{"url": "u"}, scope["payload"])

	var empty *TriggerEvent
	asserter.Empty(empty.Scope())
}
