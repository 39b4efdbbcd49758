package standard

import (
	"context"
	"time"

	"pctasks/app/objects"
	"pctasks/plugins/plugin"
)

const (
	EchoTask  = "pctasks.standard:echo"
	FailTask  = "pctasks.standard:fail"
	WaitTask  = "pctasks.standard:wait"
	SleepTask = "pctasks.standard:sleep"
)

// Echo outputs its arguments.
func Echo(ctx context.Context, input map[string]interface{}, tc *plugin.TaskContext) objects.TaskResult {
	tc.Log().Debugf("run std echo input is %#v", input)
	if input == nil {
		input = map[string]interface{}{}
	}
	return objects.CompletedResult(input)
}

type FailInput struct {
	Message string `json:"message"`
}

func Fail(ctx context.Context, input *FailInput, tc *plugin.TaskContext) objects.TaskResult {
	msg := input.Message
	if msg == "" {
		msg = "task failed"
	}
	return objects.FailedResult(msg)
}

type WaitInput struct {
	// Times is how many runs answer "wait" before the task completes.
	Times          int                    `json:"times"`
	Message        string                 `json:"message"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
	Output         map[string]interface{} `json:"output"`
}

func Wait(ctx context.Context, input *WaitInput, tc *plugin.TaskContext) objects.TaskResult {
	times := input.Times
	if times <= 0 {
		times = 1
	}
	if tc.Attempt < times {
		return objects.WaitResult(input.Message, input.TimeoutSeconds)
	}
	output := input.Output
	if output == nil {
		output = map[string]interface{}{}
	}
	output["attempt"] = tc.Attempt
	return objects.CompletedResult(output)
}

type SleepInput struct {
	Seconds float64 `json:"seconds"`
}

func Sleep(ctx context.Context, input *SleepInput, tc *plugin.TaskContext) objects.TaskResult {
	d := time.Duration(input.Seconds * float64(time.Second))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return objects.FailedResult("sleep interrupted: " + ctx.Err().Error())
	case <-t.C:
	}
	return objects.CompletedResult(map[string]interface{}{"slept": input.Seconds})
}

func GetEndpoints() map[string]plugin.Task {
	return map[string]plugin.Task{
		EchoTask:  plugin.TaskFunc(Echo),
		FailTask:  plugin.Typed(Fail),
		WaitTask:  plugin.Typed(Wait),
		SleepTask: plugin.Typed(Sleep),
	}
}
