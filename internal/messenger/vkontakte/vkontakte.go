// Package vkontakte implements the VK wall posting delivery backend.
package vkontakte

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/models"
)

const (
	apiBase    = "https://api.vk.com/method"
	apiVersion = "5.199"
)

// httpDoer abstracts the HTTP client, enabling test mocks.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Messenger posts messages to VK walls. Dispatch addresses are wall owner
// identifiers (negative for communities); an empty address falls back to
// the default owner.
type Messenger struct {
	ownerID string
	client  httpDoer
}

// Opts holds parameters for creating a VK Messenger.
type Opts struct {
	AccessToken string
	OwnerID     string // default wall to post to

	// For testing: inject an HTTP client instead of the OAuth2 one.
	Client httpDoer
}

// New creates a VK Messenger. The access token is carried by an OAuth2
// transport rather than request parameters.
func New(opts Opts) (*Messenger, error) {
	if opts.Client == nil && opts.AccessToken == "" {
		return nil, fmt.Errorf("vkontakte: access token is required")
	}
	m := &Messenger{ownerID: opts.OwnerID, client: opts.Client}
	if m.client == nil {
		source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AccessToken})
		m.client = oauth2.NewClient(context.Background(), source)
	}
	return m, nil
}

func (m *Messenger) Alias() string { return "vkontakte" }

func (m *Messenger) Title() string { return "VKontakte" }

// AllowUserSubscription is false: wall posting is a broadcast, not a
// per-user channel.
func (m *Messenger) AllowUserSubscription() bool { return false }

// ResolveAddress normalizes a wall owner identifier.
func (m *Messenger) ResolveAddress(recipient string) string {
	return strings.TrimSpace(recipient)
}

// WarmUp verifies the token against the API.
func (m *Messenger) WarmUp(ctx context.Context) error {
	if _, err := m.call(ctx, "users.get", url.Values{}); err != nil {
		return fmt.Errorf("vkontakte: warm up: %w", err)
	}
	return nil
}

// Send posts the compiled body to each dispatch's wall.
func (m *Messenger) Send(ctx context.Context, mt *delivery.MessageType, msg *models.Message, batch []*models.Dispatch, sink delivery.StatusSink) error {
	for _, d := range batch {
		owner := d.Address
		if owner == "" {
			owner = m.ownerID
		}
		if owner == "" {
			sink.MarkFailed(d, "vkontakte: no wall owner for dispatch")
			continue
		}

		params := url.Values{}
		params.Set("owner_id", owner)
		params.Set("message", d.MessageCache)
		params.Set("from_group", "1")

		if _, err := m.call(ctx, "wall.post", params); err != nil {
			sink.MarkError(d, fmt.Sprintf("vkontakte: %v", err))
			continue
		}
		sink.MarkSent(d)
	}
	return nil
}

// CoolDown is a no-op: the API client is stateless.
func (m *Messenger) CoolDown(ctx context.Context) error { return nil }

// apiError is the error envelope of an API response.
type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// call invokes one API method and unwraps the response envelope.
func (m *Messenger) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	params.Set("v", apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		apiBase+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	var envelope struct {
		Response json.RawMessage `json:"response"`
		Error    *apiError       `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, envelope.Error)
	}
	return envelope.Response, nil
}
