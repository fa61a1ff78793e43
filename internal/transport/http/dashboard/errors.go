package dashboardhttp

import (
	"context"
	"errors"
	"net/http"

	"heartdash/internal/artifact"
	"heartdash/internal/experiments"
	"heartdash/internal/predict"
)

const (
	kindNotFound         = "not_found"
	kindInvalidInput     = "invalid_input"
	kindModelUnavailable = "model_unavailable"
	kindClassifier       = "classifier"
	kindCanceled         = "canceled"
	kindInternal         = "internal"
)

// statusClientClosedRequest is the nginx convention for a request the client
// abandoned before the response was ready.
const statusClientClosedRequest = 499

// classify maps a domain error onto an HTTP status and a stable kind label.
func classify(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, artifact.ErrNotFound), errors.Is(err, experiments.ErrEmpty):
		return http.StatusNotFound, kindNotFound
	case errors.Is(err, predict.ErrInvalidInput):
		return http.StatusBadRequest, kindInvalidInput
	case errors.Is(err, predict.ErrModelUnavailable):
		return http.StatusServiceUnavailable, kindModelUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return statusClientClosedRequest, kindCanceled
	case errors.Is(err, predict.ErrClassifier):
		return http.StatusInternalServerError, kindClassifier
	default:
		return http.StatusInternalServerError, kindInternal
	}
}
