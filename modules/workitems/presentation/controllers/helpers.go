package controllers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/drydock-pm/drydock/modules/workitems/services"
	"github.com/drydock-pm/drydock/pkg/httpapi"
)

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	svcErr := services.AsServiceError(err)
	message := svcErr.Message
	if svcErr.Status < http.StatusInternalServerError && svcErr.Cause != nil {
		message = svcErr.Cause.Error()
	}
	writeAPIError(w, svcErr.Status, requestID, svcErr.Code, message)
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	writeJSON(w, status, httpapi.ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
