package relay

import (
	"errors"
	"strings"

	"github.com/gorilla/websocket"
)

var (
	ErrNoRelay        = errors.New("relay: no live relay connection")
	ErrRequestTimeout = errors.New("relay: request timed out")
	ErrEmptyReply     = errors.New("relay: reply carried no envelope")
	ErrHalted         = errors.New("relay: node is shut down")
)

// IsBenignClose reports whether err looks like a relay dropping the
// connection during or right after a send. Relays are observed to close
// immediately after accepting a publish, and that closure says nothing about
// delivery, so callers treat it as success. Callers should still log these at
// a distinguishable level: a real publish failure racing with a close is
// indistinguishable here.
func IsBenignClose(err error) bool {
	if err == nil {
		return false
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection closed",
		"close sent",
		"use of closed network connection",
		"broken pipe",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
