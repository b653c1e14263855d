package store

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/omnisupport/chatkit/pkg/wire"
)

// Keys are namespaced so widget state never collides with anything else
// sharing the same storage area.
const (
	keyPrefix       = "omnisupport.widget/"
	keyVisitor      = keyPrefix + "visitor"
	keyConversation = keyPrefix + "conversation"
	keyPrechat      = keyPrefix + "prechat_completed"
)

// SessionStore persists visitor identity and the conversation handle across
// reloads. Every failure is swallowed and logged: reads report absence,
// writes are best-effort, and a corrupt entry is dropped as if it never
// existed. Callers must not depend on persistence succeeding.
type SessionStore struct {
	kv KV
}

// NewSessionStore wraps the given KV. A nil KV degrades to memory-only state.
func NewSessionStore(kv KV) *SessionStore {
	if kv == nil {
		kv = NewMemoryKV()
	}
	return &SessionStore{kv: kv}
}

// Visitor returns the persisted visitor identity, if any.
func (s *SessionStore) Visitor() (wire.Visitor, bool) {
	var v wire.Visitor
	if !s.getJSON(keyVisitor, &v) || v.ID == "" {
		return wire.Visitor{}, false
	}
	return v, true
}

func (s *SessionStore) SetVisitor(v wire.Visitor) {
	s.setJSON(keyVisitor, v)
}

// Conversation returns the persisted conversation handle, if any. A corrupt
// entry is deleted and reported as absent.
func (s *SessionStore) Conversation() (wire.Conversation, bool) {
	var c wire.Conversation
	if !s.getJSON(keyConversation, &c) || c.ID == "" {
		return wire.Conversation{}, false
	}
	return c, true
}

func (s *SessionStore) SetConversation(c wire.Conversation) {
	s.setJSON(keyConversation, c)
}

func (s *SessionStore) ClearConversation() {
	s.delete(keyConversation)
}

func (s *SessionStore) PrechatCompleted() bool {
	b, ok, err := s.kv.Get(keyPrechat)
	if err != nil {
		log.Warn().Err(err).Str("component", "session_store").Msg("storage read failed, treating as absent")
		return false
	}
	return ok && string(b) == "true"
}

func (s *SessionStore) SetPrechatCompleted(done bool) {
	v := "false"
	if done {
		v = "true"
	}
	if err := s.kv.Set(keyPrechat, []byte(v)); err != nil {
		log.Warn().Err(err).Str("component", "session_store").Msg("storage write failed, continuing with memory-only state")
	}
}

// Reset clears all persisted widget state. Only an explicit visitor action
// reaches here; nothing else deletes the visitor identity.
func (s *SessionStore) Reset() {
	s.delete(keyVisitor)
	s.delete(keyConversation)
	s.delete(keyPrechat)
}

func (s *SessionStore) getJSON(key string, out any) bool {
	b, ok, err := s.kv.Get(key)
	if err != nil {
		log.Warn().Err(err).Str("component", "session_store").Str("key", key).Msg("storage read failed, treating as absent")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		log.Warn().Err(err).Str("component", "session_store").Str("key", key).Msg("dropping corrupt storage entry")
		s.delete(key)
		return false
	}
	return true
}

func (s *SessionStore) setJSON(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("component", "session_store").Str("key", key).Msg("storage encode failed")
		return
	}
	if err := s.kv.Set(key, b); err != nil {
		log.Warn().Err(err).Str("component", "session_store").Str("key", key).Msg("storage write failed, continuing with memory-only state")
	}
}

func (s *SessionStore) delete(key string) {
	if err := s.kv.Delete(key); err != nil {
		log.Warn().Err(err).Str("component", "session_store").Str("key", key).Msg("storage delete failed")
	}
}
