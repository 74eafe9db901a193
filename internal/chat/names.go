package chat

import (
	"context"
	"strings"
	"sync"

	chatapi "google.golang.org/api/chat/v1"
)

// botIDLen is how much of a bot's opaque identifier survives into its
// synthesized label.
const botIDLen = 8

// lookupFunc resolves a bare chat user ID to a display name.
type lookupFunc func(ctx context.Context, userID string) (string, error)

// nameResolver caches sender display names for the life of the process.
// Display names are treated as immutable here; nothing is ever
// invalidated. Humans and bots are cached separately because bot labels
// are synthesized locally while human names go through the People API.
type nameResolver struct {
	mu     sync.Mutex
	humans map[string]string
	bots   map[string]string
	lookup lookupFunc
}

func newNameResolver(lookup lookupFunc) *nameResolver {
	return &nameResolver{
		humans: make(map[string]string),
		bots:   make(map[string]string),
		lookup: lookup,
	}
}

// Resolve maps a message sender to a display string. Provider-supplied
// names win and are cached. Bot labels are synthesized locally. Human
// names are looked up once; a failed lookup caches the raw identifier so
// the same sender never triggers a retry within this process.
func (r *nameResolver) Resolve(ctx context.Context, sender *chatapi.User) string {
	if sender == nil {
		return "unknown"
	}

	isBot := sender.Type == "BOT"

	r.mu.Lock()
	cache := r.humans
	if isBot {
		cache = r.bots
	}
	if name, ok := cache[sender.Name]; ok {
		r.mu.Unlock()
		return name
	}
	r.mu.Unlock()

	name := r.resolveUncached(ctx, sender, isBot)

	r.mu.Lock()
	cache[sender.Name] = name
	r.mu.Unlock()

	return name
}

func (r *nameResolver) resolveUncached(ctx context.Context, sender *chatapi.User, isBot bool) string {
	if sender.DisplayName != "" {
		return sender.DisplayName
	}

	id := strings.TrimPrefix(sender.Name, "users/")

	if isBot {
		if len(id) > botIDLen {
			id = id[:botIDLen]
		}
		return "Bot " + id
	}

	name, err := r.lookup(ctx, id)
	if err != nil {
		// Stable fallback: the raw identifier. Cached by the caller so
		// one failed lookup does not retry on every recurrence.
		return sender.Name
	}

	return name
}
