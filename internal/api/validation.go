package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ValidateIDParam checks that the named chi URL param is present and
// returns it, or an error.
func ValidateIDParam(r *http.Request, name string) (string, error) {
	id := chi.URLParam(r, name)
	if id == "" {
		return "", errors.New("missing " + name + " parameter")
	}
	return id, nil
}

// ValidateAuth ensures the request carries a verified caller and returns its userID.
func ValidateAuth(r *http.Request) (string, error) {
	userID, _ := r.Context().Value(ContextUserIDKey).(string)
	if userID == "" {
		return "", errors.New("not authenticated: no verified caller in context")
	}
	return userID, nil
}
