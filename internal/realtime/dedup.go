package realtime

import "errors"

// maxTokens bounds the client message tokens one connection may use.
const maxTokens = 65536

var errTokenLimit = errors.New("client token limit reached")

// tokenSet remembers every client message token seen on one connection.
// Nothing is evicted; once full the connection must be closed so a replay
// can never slip through. Not safe for concurrent use; a session touches
// it only from its own loop.
type tokenSet struct {
	seen  map[string]struct{}
	limit int
}

func newTokenSet(limit int) *tokenSet {
	if limit <= 0 {
		limit = maxTokens
	}
	return &tokenSet{seen: make(map[string]struct{}), limit: limit}
}

func (s *tokenSet) Seen(token string) bool {
	_, ok := s.seen[token]
	return ok
}

// Full reports whether another token would exceed the limit.
func (s *tokenSet) Full() bool {
	return len(s.seen) >= s.limit
}

func (s *tokenSet) Add(token string) {
	s.seen[token] = struct{}{}
}

func (s *tokenSet) Len() int {
	return len(s.seen)
}
