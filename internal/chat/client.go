// Package chat retrieves Google Chat history through the credential
// manager: space and message listing with server-side time filtering,
// transparent pagination, and an optional compact reshape that resolves
// sender display names.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	chatapi "google.golang.org/api/chat/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"

	"github.com/chy168/google-chat-mcp-server/internal/auth"
	apperrors "github.com/chy168/google-chat-mcp-server/internal/errors"
)

// pageSize is the fixed page size for paginated listing calls.
const pageSize = 100

// Client is the retrieval pipeline over the Chat and People APIs. Every
// call obtains its credential through the manager, which refreshes
// expired tokens transparently.
type Client struct {
	manager  *auth.CredentialManager
	logger   *slog.Logger
	compact  atomic.Bool
	resolver *nameResolver

	chatOpts   []option.ClientOption
	peopleOpts []option.ClientOption
}

// ClientConfig configures the retrieval pipeline.
type ClientConfig struct {
	// Manager supplies credentials for every call.
	Manager *auth.CredentialManager

	Logger *slog.Logger

	// Compact controls whether message listings are reshaped down to
	// sender, time, text, and thread. Process-wide and mutable.
	Compact bool

	// ChatOptions and PeopleOptions are appended to the generated API
	// clients' options. Tests use them to point the clients at fake
	// endpoints.
	ChatOptions   []option.ClientOption
	PeopleOptions []option.ClientOption
}

// NewClient creates the pipeline.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		manager:    cfg.Manager,
		logger:     cfg.Logger,
		chatOpts:   cfg.ChatOptions,
		peopleOpts: cfg.PeopleOptions,
	}
	c.compact.Store(cfg.Compact)
	c.resolver = newNameResolver(c.lookupDisplayName)

	return c
}

// Compact reports whether message reshaping is enabled.
func (c *Client) Compact() bool {
	return c.compact.Load()
}

// SetCompact toggles message reshaping for the whole process.
func (c *Client) SetCompact(v bool) {
	c.compact.Store(v)
}

// serviceOptions builds the option list for a generated API client:
// the current credential as a static token source plus any test
// overrides. Returns ErrUnauthenticated when no credential is available.
func (c *Client) serviceOptions(ctx context.Context, extra []option.ClientOption) ([]option.ClientOption, error) {
	cred, err := c.manager.GetCredential(ctx)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, apperrors.ErrUnauthenticated
	}

	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(cred.Token())),
	}

	return append(opts, extra...), nil
}

// ListSpaces lists all Chat spaces the authenticated user can see,
// following pagination to the end.
func (c *Client) ListSpaces(ctx context.Context) ([]*chatapi.Space, error) {
	opts, err := c.serviceOptions(ctx, c.chatOpts)
	if err != nil {
		return nil, err
	}

	svc, err := chatapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating chat service: %w", err)
	}

	var spaces []*chatapi.Space
	pageToken := ""

	for {
		resp, err := svc.Spaces.List().PageSize(pageSize).PageToken(pageToken).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("listing chat spaces: %w", err)
		}

		spaces = append(spaces, resp.Spaces...)

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return spaces, nil
		}
	}
}

// ListMessages lists messages in a space, optionally bounded by the
// given dates (see buildMessageFilter for the window semantics). The
// bounds are validated before any request is issued. All pages are
// fetched and accumulated in server order.
func (c *Client) ListMessages(ctx context.Context, spaceName string, start, end *time.Time) ([]*chatapi.Message, error) {
	filter, err := buildMessageFilter(start, end)
	if err != nil {
		return nil, err
	}

	opts, err := c.serviceOptions(ctx, c.chatOpts)
	if err != nil {
		return nil, err
	}

	svc, err := chatapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating chat service: %w", err)
	}

	var messages []*chatapi.Message
	pageToken := ""

	for {
		call := svc.Spaces.Messages.List(spaceName).PageSize(pageSize).PageToken(pageToken)
		if filter != "" {
			call = call.Filter(filter)
		}

		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("listing messages in %s: %w", spaceName, err)
		}

		messages = append(messages, resp.Messages...)

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.logger.Debug("messages fetched",
		slog.String("space", spaceName),
		slog.Int("count", len(messages)),
	)

	return messages, nil
}

// CompactMessage is the reduced message shape produced in compact mode:
// a payload-size reduction for downstream consumers, keeping only what a
// summarizing agent needs.
type CompactMessage struct {
	Sender     string `json:"sender"`
	CreateTime string `json:"create_time"`
	Text       string `json:"text"`
	Thread     string `json:"thread,omitempty"`
}

// CompactMessages reshapes messages, replacing each sender with a
// resolved display name. A failed name lookup falls back to the raw
// identifier rather than dropping the message.
func (c *Client) CompactMessages(ctx context.Context, messages []*chatapi.Message) []CompactMessage {
	out := make([]CompactMessage, 0, len(messages))

	for _, m := range messages {
		cm := CompactMessage{
			Sender:     c.resolver.Resolve(ctx, m.Sender),
			CreateTime: m.CreateTime,
			Text:       m.Text,
		}
		if m.Thread != nil {
			cm.Thread = m.Thread.Name
		}

		out = append(out, cm)
	}

	return out
}

// lookupDisplayName resolves a chat user ID through the People API. The
// chat identifier (users/<id>) is translated to the People resource key
// (people/<id>).
func (c *Client) lookupDisplayName(ctx context.Context, userID string) (string, error) {
	opts, err := c.serviceOptions(ctx, c.peopleOpts)
	if err != nil {
		return "", err
	}

	svc, err := people.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("creating people service: %w", err)
	}

	person, err := svc.People.Get("people/" + userID).PersonFields("names").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("looking up person %s: %w", userID, err)
	}

	if len(person.Names) == 0 || person.Names[0].DisplayName == "" {
		return "", fmt.Errorf("person %s has no display name", userID)
	}

	return person.Names[0].DisplayName, nil
}
