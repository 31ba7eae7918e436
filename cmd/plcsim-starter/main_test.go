package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRejectsBadArguments(t *testing.T) {
	assert.Equal(t, 2, run([]string{"PLC_1", "123"}))
	assert.Equal(t, 2, run([]string{"PLC_1", "not-a-pid", t.TempDir()}))
	assert.Equal(t, 2, run([]string{"--no-such-flag"}))
	assert.Equal(t, 2, run([]string{"--log-level", "9"}))
}

func TestRunHelp(t *testing.T) {
	assert.Equal(t, 0, run([]string{"--help"}))
}
