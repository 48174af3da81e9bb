package editor

import "sync"

// Store hands out one document per session. Documents live for the process
// lifetime; persistence of the timeline itself belongs to the editor, not
// the agent backend.
type Store struct {
	mu   sync.Mutex
	docs map[string]*Document
}

// NewStore creates an empty document store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*Document)}
}

// Get returns the session's document, creating an empty one on first use.
func (s *Store) Get(sessionID string) *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[sessionID]
	if !ok {
		doc = NewDocument()
		s.docs[sessionID] = doc
	}
	return doc
}

// Put replaces the session's document. Used by tests and by editor sync.
func (s *Store) Put(sessionID string, doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[sessionID] = doc
}
