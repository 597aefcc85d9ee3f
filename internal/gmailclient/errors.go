package gmailclient

import (
	"errors"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
)

var ErrHistoryExpired = errors.New("gmailclient: history id expired")
var ErrAuthExpired = errors.New("gmailclient: auth expired")
var ErrNotFound = errors.New("gmailclient: not found")

// BatchError mirrors the {code, message, status} shape Gmail puts on a
// failed batch part (and on whole-batch failures).
type BatchError struct {
	Code    int
	Message string
	Status  string
}

func (e *BatchError) Error() string {
	return "gmailclient: " + strconv.Itoa(e.Code) + " " + e.Status + ": " + e.Message
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 404:
			return ErrNotFound
		case 401:
			return ErrAuthExpired
		}
	}
	return err
}

func isHistoryExpired(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 404 && strings.Contains(strings.ToLower(gerr.Message), "history")
	}
	return false
}
