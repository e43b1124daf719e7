package middleware

import (
	"context"
	"net/http"
	"strconv"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ParticipantIDKey is the context key for the acting participant ID
	ParticipantIDKey ContextKey = "participant_id"
)

// ParticipantContext extracts the acting participant from the
// X-Participant-ID header and stores it in the request context. Diners
// identify themselves with the header; staff endpoints work without it.
func ParticipantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("X-Participant-ID"); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
				r = r.WithContext(context.WithValue(r.Context(), ParticipantIDKey, id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// GetParticipantID retrieves the acting participant ID from the context
func GetParticipantID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ParticipantIDKey).(int64)
	return id, ok
}
