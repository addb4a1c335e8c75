package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	workerKey    contextKey = "worker"
)

func setRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the id assigned by RequestID, if any.
func GetRequestID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(requestIDKey).(string)
	return id, ok
}

func setWorker(ctx context.Context) context.Context {
	return context.WithValue(ctx, workerKey, true)
}

// IsWorker reports whether the request was authenticated as a worker.
func IsWorker(r *http.Request) bool {
	ok, _ := r.Context().Value(workerKey).(bool)
	return ok
}
