// Package twitterapi contains the REST client the gateway uses for account
// verification, user lookup, follower listing, and the chat-command actions
// (post, follow, block, favorite, retweet, and friends).
package twitterapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// MaxLookupBatch is the largest user_id batch users/lookup accepts.
const MaxLookupBatch = 100

// Client talks to the Twitter REST API v1.1.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a client authenticating with the given bearer token.
func NewClient(baseURL, accessToken string) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: oauth2.NewClient(context.Background(), src),
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// do issues the request and decodes a 2xx JSON body into out (out may be nil).
// Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	var body io.Reader
	endpoint := c.BaseURL + path
	if method == http.MethodPost {
		body = strings.NewReader(params.Encode())
	} else if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// VerifyCredentials confirms the access token and returns the owning account.
func (c *Client) VerifyCredentials(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/account/verify_credentials.json", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// LookupUsers resolves up to MaxLookupBatch ids in one call.
func (c *Client) LookupUsers(ctx context.Context, ids []uint64) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxLookupBatch {
		return nil, fmt.Errorf("lookup batch too large: %d > %d", len(ids), MaxLookupBatch)
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	params := url.Values{"user_id": {strings.Join(parts, ",")}}
	var users []User
	if err := c.do(ctx, http.MethodPost, "/users/lookup.json", params, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FollowerIDs fetches one page of the cursored follower-id listing.
func (c *Client) FollowerIDs(ctx context.Context, cursor int64) (*FollowerIDsPage, error) {
	params := url.Values{"cursor": {strconv.FormatInt(cursor, 10)}}
	var page FollowerIDsPage
	if err := c.do(ctx, http.MethodGet, "/followers/ids.json", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UserTimeline returns the most recent statuses of a screen name.
func (c *Client) UserTimeline(ctx context.Context, screenName string, count int) ([]Status, error) {
	if count <= 0 {
		count = 20
	}
	params := url.Values{
		"screen_name": {screenName},
		"count":       {strconv.Itoa(count)},
		"include_rts": {"true"},
	}
	var statuses []Status
	if err := c.do(ctx, http.MethodGet, "/statuses/user_timeline.json", params, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// UpdateStatus posts a new tweet, optionally as a reply.
func (c *Client) UpdateStatus(ctx context.Context, text string, inReplyTo uint64) (*Status, error) {
	params := url.Values{"status": {text}}
	if inReplyTo != 0 {
		params.Set("in_reply_to_status_id", strconv.FormatUint(inReplyTo, 10))
	}
	var st Status
	if err := c.do(ctx, http.MethodPost, "/statuses/update.json", params, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SendDirectMessage delivers a DM to a screen name.
func (c *Client) SendDirectMessage(ctx context.Context, screenName, text string) (*DirectMessage, error) {
	params := url.Values{"screen_name": {screenName}, "text": {text}}
	var dm DirectMessage
	if err := c.do(ctx, http.MethodPost, "/direct_messages/new.json", params, &dm); err != nil {
		return nil, err
	}
	return &dm, nil
}

// CreateFriendship follows an account.
func (c *Client) CreateFriendship(ctx context.Context, id uint64) (*User, error) {
	return c.userAction(ctx, "/friendships/create.json", id)
}

// DestroyFriendship unfollows an account.
func (c *Client) DestroyFriendship(ctx context.Context, id uint64) (*User, error) {
	return c.userAction(ctx, "/friendships/destroy.json", id)
}

// CreateBlock blocks an account.
func (c *Client) CreateBlock(ctx context.Context, id uint64) (*User, error) {
	return c.userAction(ctx, "/blocks/create.json", id)
}

// DestroyBlock removes a block.
func (c *Client) DestroyBlock(ctx context.Context, id uint64) (*User, error) {
	return c.userAction(ctx, "/blocks/destroy.json", id)
}

func (c *Client) userAction(ctx context.Context, path string, id uint64) (*User, error) {
	params := url.Values{"user_id": {strconv.FormatUint(id, 10)}}
	var u User
	if err := c.do(ctx, http.MethodPost, path, params, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ShowUser looks up a single account by numeric id, screen name, or email.
func (c *Client) ShowUser(ctx context.Context, idOrName string) (*User, error) {
	params := url.Values{}
	if _, err := strconv.ParseUint(idOrName, 10, 64); err == nil {
		params.Set("user_id", idOrName)
	} else if strings.Contains(idOrName, "@") {
		params.Set("email", idOrName)
	} else {
		params.Set("screen_name", idOrName)
	}
	var u User
	if err := c.do(ctx, http.MethodGet, "/users/show.json", params, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SetNotifications enables or disables device notifications for an account.
func (c *Client) SetNotifications(ctx context.Context, id uint64, on bool) error {
	path := "/notifications/follow.json"
	if !on {
		path = "/notifications/leave.json"
	}
	params := url.Values{"user_id": {strconv.FormatUint(id, 10)}}
	return c.do(ctx, http.MethodPost, path, params, nil)
}

// CreateFavorite likes a status.
func (c *Client) CreateFavorite(ctx context.Context, statusID uint64) error {
	path := fmt.Sprintf("/favorites/create/%d.json", statusID)
	return c.do(ctx, http.MethodPost, path, url.Values{}, nil)
}

// Retweet reshares a status.
func (c *Client) Retweet(ctx context.Context, statusID uint64) (*Status, error) {
	path := fmt.Sprintf("/statuses/retweet/%d.json", statusID)
	var st Status
	if err := c.do(ctx, http.MethodPost, path, url.Values{}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ReportSpam reports an account and blocks it.
func (c *Client) ReportSpam(ctx context.Context, screenName string) (*User, error) {
	params := url.Values{"screen_name": {screenName}}
	var u User
	if err := c.do(ctx, http.MethodPost, "/report_spam.json", params, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// RateLimitStatus reports the remaining REST quota.
func (c *Client) RateLimitStatus(ctx context.Context) (*RateLimitStatus, error) {
	var rl RateLimitStatus
	if err := c.do(ctx, http.MethodGet, "/account/rate_limit_status.json", nil, &rl); err != nil {
		return nil, err
	}
	return &rl, nil
}
