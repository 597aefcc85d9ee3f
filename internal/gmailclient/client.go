// Package gmailclient wraps Gmail's HTTP surface so callers deal in typed
// per-message results instead of raw JSON. Single-item calls (profile,
// list, history) go through the official google.golang.org/api/gmail/v1
// client, built fresh per request off the caller's access token; the bulk
// batch_get/batch_modify/batch_delete calls bypass it and speak Gmail's
// multipart/mixed batch wire protocol by hand, because the generated
// client has no support for that endpoint.
package gmailclient

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client is stateless; callers (the Adaptive Throttle, the Sync Engine)
// impose concurrency and pacing around it.
type Client struct {
	httpTimeout time.Duration
}

func New() *Client {
	return &Client{httpTimeout: 60 * time.Second}
}

func (c *Client) service(ctx context.Context, accessToken string) (*gmail.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("gmailclient: new service: %w", err)
	}
	return svc, nil
}

// Profile is the subset of users.getProfile this module needs.
type Profile struct {
	EmailAddress  string
	MessagesTotal int64
	HistoryID     uint64
}

func (c *Client) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	p, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, classifyErr(err)
	}
	return &Profile{EmailAddress: p.EmailAddress, MessagesTotal: p.MessagesTotal, HistoryID: p.HistoryId}, nil
}

// ListPage is one page of a users.messages.list call.
type ListPage struct {
	IDs               []string
	NextPageToken     string
	ResultSizeEstimate int64
}

func (c *Client) ListMessages(ctx context.Context, accessToken, pageToken string, maxResults int64) (*ListPage, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	call := svc.Users.Messages.List("me").IncludeSpamTrash(true).Context(ctx)
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, classifyErr(err)
	}
	page := &ListPage{NextPageToken: resp.NextPageToken, ResultSizeEstimate: resp.ResultSizeEstimate}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

// HistoryChange is the union of the three disjoint event kinds the delta
// sync cares about for one history entry.
type HistoryChange struct {
	MessagesAdded   []string
	MessagesDeleted []string
	LabelsAdded     map[string][]string // message id -> labels
	LabelsRemoved   map[string][]string
}

// HistoryListResult carries the changes plus the largest history id seen,
// or ErrHistoryExpired if Gmail has pruned startHistoryID.
type HistoryListResult struct {
	Changes       HistoryChange
	LastHistoryID uint64
}

func (c *Client) ListHistory(ctx context.Context, accessToken string, startHistoryID uint64) (*HistoryListResult, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	result := &HistoryListResult{
		LastHistoryID: startHistoryID,
		Changes: HistoryChange{
			LabelsAdded:   map[string][]string{},
			LabelsRemoved: map[string][]string{},
		},
	}
	pageToken := ""
	for {
		call := svc.Users.History.List("me").StartHistoryId(startHistoryID).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			if isHistoryExpired(err) {
				return nil, ErrHistoryExpired
			}
			return nil, classifyErr(err)
		}
		if resp.HistoryId > result.LastHistoryID {
			result.LastHistoryID = resp.HistoryId
		}
		for _, h := range resp.History {
			if h.Id > result.LastHistoryID {
				result.LastHistoryID = h.Id
			}
			for _, a := range h.MessagesAdded {
				result.Changes.MessagesAdded = append(result.Changes.MessagesAdded, a.Message.Id)
			}
			for _, d := range h.MessagesDeleted {
				result.Changes.MessagesDeleted = append(result.Changes.MessagesDeleted, d.Message.Id)
			}
			for _, l := range h.LabelsAdded {
				result.Changes.LabelsAdded[l.Message.Id] = append(result.Changes.LabelsAdded[l.Message.Id], l.LabelIds...)
			}
			for _, l := range h.LabelsRemoved {
				result.Changes.LabelsRemoved[l.Message.Id] = append(result.Changes.LabelsRemoved[l.Message.Id], l.LabelIds...)
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return result, nil
}
