package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/chy168/google-chat-mcp-server/internal/auth"
	apperrors "github.com/chy168/google-chat-mcp-server/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAuthenticatedClient builds a Client backed by a valid stored
// credential, with the generated API clients pointed at the given fake
// server.
func newAuthenticatedClient(t *testing.T, fake *httptest.Server) *Client {
	t.Helper()

	dir := t.TempDir()

	store := auth.NewTokenStore(filepath.Join(dir, "token.json"))
	require.NoError(t, store.Save(&auth.Credential{
		AccessToken: "test-access",
		Expiry:      time.Now().Add(time.Hour),
	}))

	secretsPath := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(secretsPath, []byte(`{
	  "installed": {
	    "client_id": "id",
	    "client_secret": "secret",
	    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
	    "token_uri": "https://oauth2.googleapis.com/token",
	    "redirect_uris": ["http://localhost"]
	  }
	}`), 0o600))

	mgr := auth.NewCredentialManager(store, secretsPath, testLogger())
	opts := []option.ClientOption{
		option.WithEndpoint(fake.URL),
		option.WithHTTPClient(fake.Client()),
	}

	return NewClient(ClientConfig{
		Manager:       mgr,
		Logger:        testLogger(),
		Compact:       true,
		ChatOptions:   opts,
		PeopleOptions: opts,
	})
}

func newUnauthenticatedClient(t *testing.T) *Client {
	t.Helper()

	dir := t.TempDir()
	store := auth.NewTokenStore(filepath.Join(dir, "token.json"))
	mgr := auth.NewCredentialManager(store, filepath.Join(dir, "credentials.json"), testLogger())

	return NewClient(ClientConfig{Manager: mgr, Logger: testLogger(), Compact: true})
}

// messagePages fakes the Chat messages.list endpoint with the given page
// sizes chained by continuation tokens.
func messagePages(t *testing.T, sizes []int, fetches *atomic.Int64, gotFilter *string) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/spaces/AAA/messages", r.URL.Path)
		fetches.Add(1)

		if gotFilter != nil {
			*gotFilter = r.URL.Query().Get("filter")
		}

		page := 0
		if tok := r.URL.Query().Get("pageToken"); tok != "" {
			var err error
			page, err = strconv.Atoi(tok)
			require.NoError(t, err)
		}

		start := 0
		for _, s := range sizes[:page] {
			start += s
		}

		msgs := make([]map[string]interface{}, 0, sizes[page])
		for i := 0; i < sizes[page]; i++ {
			msgs = append(msgs, map[string]interface{}{
				"name": fmt.Sprintf("spaces/AAA/messages/%d", start+i),
				"text": fmt.Sprintf("message %d", start+i),
			})
		}

		resp := map[string]interface{}{"messages": msgs}
		if page < len(sizes)-1 {
			resp["nextPageToken"] = strconv.Itoa(page + 1)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestListMessages_PaginatesToCompletion(t *testing.T) {
	var fetches atomic.Int64

	fake := httptest.NewServer(messagePages(t, []int{100, 100, 37}, &fetches, nil))
	defer fake.Close()

	c := newAuthenticatedClient(t, fake)

	msgs, err := c.ListMessages(context.Background(), "spaces/AAA", nil, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 237)
	assert.Equal(t, int64(3), fetches.Load())

	// Original server order is preserved across page boundaries.
	assert.Equal(t, "spaces/AAA/messages/0", msgs[0].Name)
	assert.Equal(t, "spaces/AAA/messages/99", msgs[99].Name)
	assert.Equal(t, "spaces/AAA/messages/100", msgs[100].Name)
	assert.Equal(t, "spaces/AAA/messages/236", msgs[236].Name)
}

func TestListMessages_ZeroResults(t *testing.T) {
	var fetches atomic.Int64

	fake := httptest.NewServer(messagePages(t, []int{0}, &fetches, nil))
	defer fake.Close()

	c := newAuthenticatedClient(t, fake)

	msgs, err := c.ListMessages(context.Background(), "spaces/AAA", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, int64(1), fetches.Load())
}

func TestListMessages_FilterForwarded(t *testing.T) {
	var (
		fetches   atomic.Int64
		gotFilter string
	)

	fake := httptest.NewServer(messagePages(t, []int{1}, &fetches, &gotFilter))
	defer fake.Close()

	c := newAuthenticatedClient(t, fake)

	start := time.Date(2024, 3, 22, 0, 0, 0, 0, time.UTC)
	_, err := c.ListMessages(context.Background(), "spaces/AAA", &start, nil)
	require.NoError(t, err)
	assert.Equal(t,
		`createTime > "2024-03-22T00:00:00Z" AND createTime < "2024-03-23T00:00:00Z"`,
		gotFilter)
}

func TestListMessages_OrderingErrorBeforeAnyRequest(t *testing.T) {
	var fetches atomic.Int64

	fake := httptest.NewServer(messagePages(t, []int{1}, &fetches, nil))
	defer fake.Close()

	c := newAuthenticatedClient(t, fake)

	start := time.Date(2024, 3, 22, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)

	_, err := c.ListMessages(context.Background(), "spaces/AAA", &start, &end)
	require.Error(t, err)
	assert.Equal(t, int64(0), fetches.Load())
}

func TestListMessages_Unauthenticated(t *testing.T) {
	c := newUnauthenticatedClient(t)

	_, err := c.ListMessages(context.Background(), "spaces/AAA", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestListSpaces_FollowsPagination(t *testing.T) {
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/spaces", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"spaces":[{"name":"spaces/one"}],"nextPageToken":"next"}`))
			return
		}
		_, _ = w.Write([]byte(`{"spaces":[{"name":"spaces/two"}]}`))
	}))
	defer fake.Close()

	c := newAuthenticatedClient(t, fake)

	spaces, err := c.ListSpaces(context.Background())
	require.NoError(t, err)
	require.Len(t, spaces, 2)
	assert.Equal(t, "spaces/one", spaces[0].Name)
	assert.Equal(t, "spaces/two", spaces[1].Name)
}

func TestListSpaces_Unauthenticated(t *testing.T) {
	c := newUnauthenticatedClient(t)

	_, err := c.ListSpaces(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestSetCompact(t *testing.T) {
	c := newUnauthenticatedClient(t)
	assert.True(t, c.Compact(), "compact mode defaults on")

	c.SetCompact(false)
	assert.False(t, c.Compact())
}
