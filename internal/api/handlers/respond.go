package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondDomainError maps domain errors onto HTTP statuses
func respondDomainError(w http.ResponseWriter, err error) {
	var verr contracts.ValidationError
	var missing *contracts.MissingFieldError

	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &missing):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, contracts.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, contracts.ErrInsufficientData):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// intParam reads an integer query parameter, def when absent
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, contracts.ValidationError{Field: name, Message: "must be an integer"}
	}
	return v, nil
}

// boolParam reads a boolean query parameter, def when absent
func boolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, contracts.ValidationError{Field: name, Message: "must be a boolean"}
	}
	return v, nil
}
