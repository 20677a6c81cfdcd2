package session

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRecoverableClassification(t *testing.T) {
	recoverable := []error{
		io.EOF,
		errors.New("read tcp: i/o timeout"),
		errors.New("connection reset by peer"),
		errors.New("operation aborted"),
		errors.New("write: broken pipe"),
	}
	for _, err := range recoverable {
		assert.True(t, IsRecoverable(err), "expected recoverable: %v", err)
	}

	nonRecoverable := []error{
		errors.New("dial tcp: no such host"),
		errors.New("tls: handshake failure"),
		errors.New("http 401 unauthorized"),
		errors.New("http 403 forbidden"),
		errors.New("connection refused"),
	}
	for _, err := range nonRecoverable {
		assert.False(t, IsRecoverable(err), "expected non-recoverable: %v", err)
	}
}

func TestIsRecoverableNilIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(nil))
}
