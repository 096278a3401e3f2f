package handler

import (
	"context"
	"net/http"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type sessionCounter interface {
	Len() int
}

type encryptionChecker interface {
	CanEncrypt() error
}

// Health reports database connectivity, open sessions and whether outgoing
// reports are encrypted.
func Health(db pinger, sessions sessionCounter, mail encryptionChecker) http.HandlerFunc {
	var h BaseHandler
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK

		if err := db.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		encryption := "enabled"
		if mail.CanEncrypt() != nil {
			encryption = "disabled"
		}

		_ = h.writeJSON(w, code, envelope{
			"status":     status,
			"sessions":   sessions.Len(),
			"encryption": encryption,
		}, nil)
	}
}
