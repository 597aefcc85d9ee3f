package gmailclient

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
)

func TestToEmailParsesFromAndSubject(t *testing.T) {
	m := &gmail.Message{
		Id:            "msg_1",
		ThreadId:      "thr_1",
		Snippet:       "hello there",
		LabelIds:      []string{"INBOX", "UNREAD", "CATEGORY_PROMOTIONS"},
		SizeEstimate:  1024,
		InternalDate:  1700000000000,
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Big sale"},
				{Name: "From", Value: `"Acme Deals" <deals@acme.example>`},
				{Name: "List-Unsubscribe", Value: "<https://acme.example/unsub>, <mailto:unsub@acme.example>"},
			},
		},
	}

	e := ToEmail("acc_1", m, 1700000001000)

	require.Equal(t, "msg_1", e.MessageID)
	require.Equal(t, "Big sale", e.Subject)
	require.Equal(t, "deals@acme.example", e.FromEmail)
	require.Equal(t, "Acme Deals", e.FromName)
	require.True(t, e.IsUnread)
	require.NotNil(t, e.Category)
	require.Equal(t, "CATEGORY_PROMOTIONS", *e.Category)
	require.NotNil(t, e.UnsubscribeLink)
	require.Equal(t, "https://acme.example/unsub", *e.UnsubscribeLink)
}

func TestToEmailFallsBackOnMalformedFromHeader(t *testing.T) {
	m := &gmail.Message{
		Id: "msg_2",
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "not a valid address at all <<<"},
			},
		},
	}
	e := ToEmail("acc_1", m, 0)
	require.Equal(t, "not a valid address at all <<<", e.FromEmail)
	require.Equal(t, "", e.FromName)
}

func TestParseListUnsubscribePrefersHTTPSOverMailto(t *testing.T) {
	got := parseListUnsubscribe("<mailto:unsub@example.com>, <https://example.com/unsub>")
	require.NotNil(t, got)
	require.Equal(t, "https://example.com/unsub", *got)
}

func TestParseListUnsubscribeFallsBackToMailto(t *testing.T) {
	got := parseListUnsubscribe("<mailto:unsub@example.com>")
	require.NotNil(t, got)
	require.Equal(t, "mailto:unsub@example.com", *got)
}

func TestParseListUnsubscribeEmptyReturnsNil(t *testing.T) {
	require.Nil(t, parseListUnsubscribe(""))
}
