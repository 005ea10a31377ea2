package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"multitrack/core/workflow"
	"multitrack/logger"
	"multitrack/repository"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Stage string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[Server] 响应编码失败", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusOf maps a workflow or ledger error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, repository.ErrPublicationNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrStorage), errors.Is(err, workflow.ErrMix):
		return http.StatusBadGateway
	case errors.Is(err, workflow.ErrChainWrite):
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

func kindOf(err error) string {
	for _, k := range []error{workflow.ErrInput, workflow.ErrBusy, workflow.ErrStorage, workflow.ErrMix, workflow.ErrChainWrite, workflow.ErrInternal} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return ""
}

func writeWorkflowError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Kind: kindOf(err)}
	var wfErr *workflow.Error
	if errors.As(err, &wfErr) {
		body.Stage = wfErr.Stage.String()
	}
	writeJSON(w, statusOf(err), body)
}
