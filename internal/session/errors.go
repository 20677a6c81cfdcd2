package session

import (
	"errors"
	"io"
	"strings"
)

// recoverableSubstrings match error messages considered transient —
// socket errors, EOF, timeouts, resets, aborts, broken pipes.
var recoverableSubstrings = []string{
	"eof",
	"timeout",
	"reset",
	"abort",
	"broken pipe",
	"i/o timeout",
	"use of closed network connection",
}

// nonRecoverableSubstrings match error messages that should never trigger
// a reconnect attempt — unknown host, TLS failure, auth rejection, refusal.
var nonRecoverableSubstrings = []string{
	"no such host",
	"tls",
	"x509",
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"refused",
}

// IsRecoverable classifies a transport error. The transport applies it to
// every read-loop failure, whether the connection was opened by the initial
// Connect or by the reconnect loop. Dial errors are not classified: Connect
// returns them to its caller, and the reconnect loop retries every dial
// error until its attempts run out.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range nonRecoverableSubstrings {
		if strings.Contains(msg, s) {
			return false
		}
	}
	for _, s := range recoverableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	// Unclassified errors default to recoverable: a session that can retry
	// is safer than one that gives up on an error we failed to recognize.
	return true
}
