package gmailclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestClassifyErrMapsNotFound(t *testing.T) {
	got := classifyErr(&googleapi.Error{Code: 404, Message: "message not found"})
	require.ErrorIs(t, got, ErrNotFound)
}

func TestClassifyErrMapsAuthExpired(t *testing.T) {
	got := classifyErr(&googleapi.Error{Code: 401, Message: "invalid credentials"})
	require.ErrorIs(t, got, ErrAuthExpired)
}

func TestClassifyErrPassesThroughOtherErrors(t *testing.T) {
	base := errors.New("boom")
	require.Equal(t, base, classifyErr(base))
}

func TestIsHistoryExpiredRequiresHistoryMention(t *testing.T) {
	require.True(t, isHistoryExpired(&googleapi.Error{Code: 404, Message: "Requested history ID not found"}))
	require.False(t, isHistoryExpired(&googleapi.Error{Code: 404, Message: "message not found"}))
	require.False(t, isHistoryExpired(errors.New("not a google api error")))
}
