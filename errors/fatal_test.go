package errors

import (
	"fmt"
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestFatalInvokesAbortHook(t *testing.T) {
	assert := tdd.New(t)

	original := abort
	defer func() { abort = original }()

	called := false
	abort = func() { called = true }

	Fatal(fmt.Errorf("schema drift"))
	assert.True(called)
}
