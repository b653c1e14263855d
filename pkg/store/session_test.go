package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/omnisupport/chatkit/pkg/wire"
)

func TestSessionStore_VisitorRoundTrip(t *testing.T) {
	s := NewSessionStore(NewMemoryKV())

	_, ok := s.Visitor()
	require.False(t, ok)

	v := wire.Visitor{
		ID:        "vis-1",
		Name:      "Ada",
		Metadata:  map[string]any{"plan": "free"},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	s.SetVisitor(v)

	got, ok := s.Visitor()
	require.True(t, ok)
	require.Equal(t, "vis-1", got.ID)
	require.Equal(t, "Ada", got.Name)
	require.Equal(t, "free", got.Metadata["plan"])
}

func TestSessionStore_CorruptConversationDropped(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(keyConversation, []byte(`{"id": truncated`)))

	s := NewSessionStore(kv)
	_, ok := s.Conversation()
	require.False(t, ok)

	// The corrupt entry is removed, not just ignored.
	_, present, err := kv.Get(keyConversation)
	require.NoError(t, err)
	require.False(t, present)
}

func TestSessionStore_PrechatFlag(t *testing.T) {
	s := NewSessionStore(NewMemoryKV())
	require.False(t, s.PrechatCompleted())

	s.SetPrechatCompleted(true)
	require.True(t, s.PrechatCompleted())

	s.SetPrechatCompleted(false)
	require.False(t, s.PrechatCompleted())
}

func TestSessionStore_Reset(t *testing.T) {
	s := NewSessionStore(NewMemoryKV())
	s.SetVisitor(wire.Visitor{ID: "vis-1"})
	s.SetConversation(wire.Conversation{ID: "conv-1"})
	s.SetPrechatCompleted(true)

	s.Reset()

	_, ok := s.Visitor()
	require.False(t, ok)
	_, ok = s.Conversation()
	require.False(t, ok)
	require.False(t, s.PrechatCompleted())
}

type failingKV struct{}

func (failingKV) Get(string) ([]byte, bool, error) { return nil, false, errors.New("quota exceeded") }
func (failingKV) Set(string, []byte) error         { return errors.New("quota exceeded") }
func (failingKV) Delete(string) error              { return errors.New("quota exceeded") }
func (failingKV) Close() error                     { return nil }

func TestSessionStore_StorageFaultsAreSwallowed(t *testing.T) {
	s := NewSessionStore(failingKV{})

	// None of these may panic or surface an error.
	s.SetVisitor(wire.Visitor{ID: "vis-1"})
	_, ok := s.Visitor()
	require.False(t, ok)
	s.SetConversation(wire.Conversation{ID: "conv-1"})
	_, ok = s.Conversation()
	require.False(t, ok)
	require.False(t, s.PrechatCompleted())
	s.Reset()
}

func TestSQLiteKV_PersistsAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "widget.db")

	kv, err := NewSQLiteKV(dsn)
	require.NoError(t, err)
	s := NewSessionStore(kv)
	s.SetVisitor(wire.Visitor{ID: "vis-1", Name: "Ada"})
	s.SetConversation(wire.Conversation{ID: "conv-1", CustomerID: "cust-1"})
	require.NoError(t, kv.Close())

	kv2, err := NewSQLiteKV(dsn)
	require.NoError(t, err)
	defer func() { _ = kv2.Close() }()

	s2 := NewSessionStore(kv2)
	v, ok := s2.Visitor()
	require.True(t, ok)
	require.Equal(t, "Ada", v.Name)
	c, ok := s2.Conversation()
	require.True(t, ok)
	require.Equal(t, "conv-1", c.ID)
}

func TestSQLiteKV_EmptyDSNRejected(t *testing.T) {
	_, err := NewSQLiteKV("  ")
	require.Error(t, err)
}

func TestSQLiteKV_Overwrite(t *testing.T) {
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "widget.db"))
	require.NoError(t, err)
	defer func() { _ = kv.Close() }()

	require.NoError(t, kv.Set("k", []byte("one")))
	require.NoError(t, kv.Set("k", []byte("two")))

	v, ok, err := kv.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", string(v))

	require.NoError(t, kv.Delete("k"))
	_, ok, err = kv.Get("k")
	require.NoError(t, err)
	require.False(t, ok)
}
