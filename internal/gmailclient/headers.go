package gmailclient

import (
	"net/mail"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// parseFrom splits a raw From header into display name and address via a
// standard RFC 5322 parse, falling back to the raw string as the email
// when parsing fails (some senders send malformed From headers).
func parseFrom(raw string) (email, name string) {
	if raw == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw)), ""
	}
	return strings.ToLower(addr.Address), addr.Name
}

// parseListUnsubscribe extracts the first URL from a List-Unsubscribe
// header, preferring an https:// link over a mailto: one when both are
// present, per RFC 8058's one-click pattern.
func parseListUnsubscribe(raw string) *string {
	if raw == "" {
		return nil
	}
	var https, mailto, other string
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		tok = strings.TrimPrefix(tok, "<")
		tok = strings.TrimSuffix(tok, ">")
		switch {
		case strings.HasPrefix(tok, "https://") && https == "":
			https = tok
		case strings.HasPrefix(tok, "mailto:") && mailto == "":
			mailto = tok
		case other == "":
			other = tok
		}
	}
	switch {
	case https != "":
		return &https
	case mailto != "":
		return &mailto
	case other != "":
		return &other
	}
	return nil
}

// ToEmail converts a Gmail API message (metadata or full format) into the
// mirror row shape, deriving the boolean flags and category from labels.
func ToEmail(accountID string, m *gmail.Message, syncedAtMillis int64) *models.Email {
	var headers []*gmail.MessagePartHeader
	if m.Payload != nil {
		headers = m.Payload.Headers
	}
	fromEmail, fromName := parseFrom(header(headers, "From"))
	e := &models.Email{
		MessageID:       m.Id,
		AccountID:       accountID,
		ThreadID:        m.ThreadId,
		Subject:         header(headers, "Subject"),
		Snippet:         m.Snippet,
		FromEmail:       fromEmail,
		FromName:        fromName,
		Labels:          append([]string(nil), m.LabelIds...),
		SizeBytes:       m.SizeEstimate,
		InternalDate:    m.InternalDate,
		SyncedAt:        syncedAtMillis,
		UnsubscribeLink: parseListUnsubscribe(header(headers, "List-Unsubscribe")),
	}
	if m.Payload != nil {
		for _, p := range m.Payload.Parts {
			if p.Filename != "" {
				e.HasAttachments = 1
				var size int64
				if p.Body != nil {
					size = p.Body.Size
				}
				e.Attachments = append(e.Attachments, models.Attachment{
					Filename: p.Filename,
					Mime:     p.MimeType,
					Size:     size,
				})
			}
		}
	}
	e.DeriveFlagsAndCategory()
	return e
}
