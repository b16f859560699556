package remote

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"maps"
	"sync"
)

// Memory is an in-process Store used by tests. It keeps raw field maps
// so merge and replace behave exactly like the real document store.
//
// Intercept, when set, runs before every operation and can fail it;
// tests use it to simulate partial remote outages.
type Memory struct {
	mu       sync.Mutex
	users    map[string]map[string]any
	books    map[string]map[string]map[string]any
	sessions map[string]map[string]map[string]map[string]any

	Intercept func(op, path string) error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]map[string]any),
		books:    make(map[string]map[string]map[string]any),
		sessions: make(map[string]map[string]map[string]map[string]any),
	}
}

func (m *Memory) intercept(op, path string) error {
	if m.Intercept != nil {
		return m.Intercept(op, path)
	}
	return nil
}

// decodeFields round-trips a raw field map into a typed document.
func decodeFields(fields map[string]any, dest any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	return json.Unmarshal(data, dest)
}

func writeFields(existing map[string]any, fields map[string]any, merge bool) map[string]any {
	if !merge || existing == nil {
		existing = make(map[string]any, len(fields))
	}
	maps.Copy(existing, fields)
	return existing
}

func (m *Memory) GetUserDocument(ctx context.Context, userID string) (*UserDocument, error) {
	if err := m.intercept("getUser", userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fields, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	var doc UserDocument
	if err := decodeFields(fields, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (m *Memory) SetUserDocument(ctx context.Context, userID string, fields map[string]any, merge bool) error {
	if err := m.intercept("setUser", userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[userID] = writeFields(m.users[userID], fields, merge)
	return nil
}

func (m *Memory) GetBookDocument(ctx context.Context, userID, title string) (*BookDocument, error) {
	if err := m.intercept("getBook", userID+"/"+title); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fields, ok := m.books[userID][title]
	if !ok {
		return nil, ErrNotFound
	}
	var doc BookDocument
	if err := decodeFields(fields, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (m *Memory) SetBookDocument(ctx context.Context, userID, title string, fields map[string]any, merge bool) error {
	if err := m.intercept("setBook", userID+"/"+title); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.books[userID] == nil {
		m.books[userID] = make(map[string]map[string]any)
	}
	m.books[userID][title] = writeFields(m.books[userID][title], fields, merge)
	return nil
}

func (m *Memory) DeleteBookDocument(ctx context.Context, userID, title string) error {
	if err := m.intercept("deleteBook", userID+"/"+title); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.books[userID], title)
	// The session subcollection goes with the book.
	delete(m.sessions[userID], title)
	return nil
}

func (m *Memory) ListSessionDocuments(ctx context.Context, userID, title string) ([]*SessionDocument, error) {
	if err := m.intercept("listSessions", userID+"/"+title); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var docs []*SessionDocument
	for _, fields := range m.sessions[userID][title] {
		var doc SessionDocument
		if err := decodeFields(fields, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

func (m *Memory) SetSessionDocument(ctx context.Context, userID, title, sessionID string, fields map[string]any, merge bool) error {
	if err := m.intercept("setSession", userID+"/"+title+"/"+sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions[userID] == nil {
		m.sessions[userID] = make(map[string]map[string]map[string]any)
	}
	if m.sessions[userID][title] == nil {
		m.sessions[userID][title] = make(map[string]map[string]any)
	}
	m.sessions[userID][title][sessionID] = writeFields(m.sessions[userID][title][sessionID], fields, merge)
	return nil
}

func (m *Memory) DeleteSessionDocument(ctx context.Context, userID, title, sessionID string) error {
	if err := m.intercept("deleteSession", userID+"/"+title+"/"+sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions[userID][title], sessionID)
	return nil
}

var _ Store = (*Memory)(nil)
