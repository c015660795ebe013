package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	assert.NotPanics(t, func() {
		defer RecoverPanic(logger, "expiry sweep")
		panic("boom")
	})

	entry := lastEntry(t, &buf)
	assert.Equal(t, "PANIC recovered", entry["msg"])
	assert.Equal(t, "boom", entry["panic"])
	assert.Equal(t, "expiry sweep", entry["context"])
	assert.NotEmpty(t, entry["stack"])
}

func TestRecoverPanicWithCallback(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	called := 0

	func() {
		defer RecoverPanicWithCallback(logger, "handler", func() { called++ })
	}()
	assert.Zero(t, called, "callback only runs after a panic")

	assert.NotPanics(t, func() {
		defer RecoverPanicWithCallback(logger, "handler", func() { called++ })
		panic("boom")
	})
	assert.Equal(t, 1, called)
}
