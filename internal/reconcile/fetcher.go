package reconcile

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"immortal-nexus-api/internal/client"
	"immortal-nexus-api/internal/wire"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

// Fetcher pulls authoritative state over REST.
type Fetcher interface {
	Conversation(ctx context.Context, partnerID string) ([]wire.Message, error)
	// Notifications returns the newest page and the unread count over all.
	Notifications(ctx context.Context) ([]wire.Notification, int, error)
	MissedEvents(ctx context.Context) ([]wire.Event, error)
}

// RESTFetcher implements Fetcher against the HTTP API.
type RESTFetcher struct {
	http *resty.Client
}

// NewRESTFetcher returns a fetcher for baseURL (e.g. http://localhost:8008)
// that authenticates every request with the current token.
func NewRESTFetcher(baseURL string, token client.TokenSource) *RESTFetcher {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if token != nil {
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			if tok := token(); tok != "" {
				req.SetAuthToken(tok)
			}
			return nil
		})
	}
	return &RESTFetcher{http: httpClient}
}

// LoginResult is the login endpoint's response.
type LoginResult struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Login exchanges credentials for a token.
func (f *RESTFetcher) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var out LoginResult
	resp, err := f.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&out).
		Post("/api/login")
	if err := checkResponse("login", resp, err); err != nil {
		return LoginResult{}, err
	}
	return out, nil
}

// Conversation fetches the recent history with partnerID, oldest first.
func (f *RESTFetcher) Conversation(ctx context.Context, partnerID string) ([]wire.Message, error) {
	var out struct {
		Messages []wire.Message `json:"messages"`
	}
	resp, err := f.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/messages/" + url.PathEscape(partnerID))
	if err := checkResponse("fetch conversation", resp, err); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Notifications fetches the newest notifications with their read flags and
// the server's unread count.
func (f *RESTFetcher) Notifications(ctx context.Context) ([]wire.Notification, int, error) {
	var out struct {
		Notifications []wire.Notification `json:"notifications"`
		UnreadCount   int                 `json:"unreadCount"`
	}
	resp, err := f.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/notifications")
	if err := checkResponse("fetch notifications", resp, err); err != nil {
		return nil, 0, err
	}
	return out.Notifications, out.UnreadCount, nil
}

// MissedEvents drains the events recorded while this user was offline.
// Entries that no longer decode are skipped.
func (f *RESTFetcher) MissedEvents(ctx context.Context) ([]wire.Event, error) {
	var out struct {
		Events []struct {
			Event json.RawMessage `json:"event"`
		} `json:"events"`
	}
	resp, err := f.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/events/missed")
	if err := checkResponse("fetch missed events", resp, err); err != nil {
		return nil, err
	}
	events := make([]wire.Event, 0, len(out.Events))
	for _, e := range out.Events {
		if evt, err := wire.Decode(e.Event); err == nil {
			events = append(events, evt)
		}
	}
	return events, nil
}

// SendMessage posts a message over REST, for callers without a socket.
func (f *RESTFetcher) SendMessage(ctx context.Context, recipientID, content, clientID string) (wire.Message, error) {
	var out struct {
		Message wire.Message `json:"message"`
	}
	resp, err := f.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"recipientId": recipientID, "content": content, "clientId": clientID}).
		SetResult(&out).
		Post("/api/messages")
	if err := checkResponse("send message", resp, err); err != nil {
		return wire.Message{}, err
	}
	return out.Message, nil
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: %s", op, resp.Status())
	}
	return nil
}
