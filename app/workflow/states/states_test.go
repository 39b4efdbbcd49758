package states

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTaskTransition(t *testing.T) {
	asserter := assert.New(t)

	path := []string{PENDING, SUBMITTING, SUBMITTED, RUNNING, WAITING, RUNNING, WAITING, RUNNING, COMPLETED}
	for i := 1; i < len(path); i++ {
		asserter.NoError(ValidateTaskTransition(path[i-1], path[i]), "%s -> %s", path[i-1], path[i])
	}

	asserter.NoError(ValidateTaskTransition(RUNNING, RUNNING))
	asserter.NoError(ValidateTaskTransition(SUBMITTING, FAILED))
	asserter.NoError(ValidateTaskTransition(RUNNING, CANCELLED))

	asserter.Error(ValidateTaskTransition(RUNNING, SUBMITTED))
	asserter.Error(ValidateTaskTransition(COMPLETED, RUNNING))
	asserter.Error(ValidateTaskTransition(FAILED, CANCELLED))
	asserter.Error(ValidateTaskTransition(WAITING, SUBMITTING))
	asserter.Error(ValidateTaskTransition("bogus", RUNNING))
}

func TestIsCompleted(t *testing.T) {
	asserter := assert.New(t)

	for _, s := range CompleteStates {
		asserter.True(IsCompleted(s))
	}
	for _, s := range IncompleteStates {
		asserter.False(IsCompleted(s))
	}
	asserter.True(IsTaskCompleted(COMPLETED))
	asserter.False(IsTaskCompleted(WAITING))
}
