package widget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omnisupport/chatkit/pkg/wire"
)

func msgAt(id string, at time.Time) wire.Message {
	return wire.Message{ID: id, SenderType: wire.SenderAgent, ContentType: wire.ContentText, CreatedAt: at}
}

func ids(list []wire.Message) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.ID
	}
	return out
}

func TestInsertMessage_DedupById(t *testing.T) {
	t0 := time.Now()
	list, added := insertMessage(nil, msgAt("a", t0))
	require.True(t, added)

	list, added = insertMessage(list, msgAt("a", t0.Add(time.Second)))
	require.False(t, added)
	require.Len(t, list, 1)
}

func TestInsertMessage_KeepsCreationOrder(t *testing.T) {
	t0 := time.Now()
	list, _ := insertMessage(nil, msgAt("b", t0.Add(2*time.Second)))
	list, _ = insertMessage(list, msgAt("c", t0.Add(3*time.Second)))

	// A late-delivered older message lands in timestamp position.
	list, added := insertMessage(list, msgAt("a", t0))
	require.True(t, added)
	require.Equal(t, []string{"a", "b", "c"}, ids(list))
}

func TestInsertMessage_EqualTimestampsKeepArrivalOrder(t *testing.T) {
	t0 := time.Now()
	list, _ := insertMessage(nil, msgAt("first", t0))
	list, _ = insertMessage(list, msgAt("second", t0))
	require.Equal(t, []string{"first", "second"}, ids(list))
}

func TestConfirmMessage_ReplacesInPlace(t *testing.T) {
	t0 := time.Now()
	optimistic := wire.NewVisitorText("hello", t0)
	list := []wire.Message{msgAt("a", t0.Add(-time.Minute)), optimistic}

	t1 := t0.Add(50 * time.Millisecond)
	list, ok := confirmMessage(list, optimistic.ID, "srv-42", t1)
	require.True(t, ok)
	require.Len(t, list, 2)
	require.Equal(t, "srv-42", list[1].ID)
	require.Equal(t, "hello", list[1].Content.Text)
	require.True(t, list[1].CreatedAt.Equal(t1))
}

func TestConfirmMessage_DropsOptimisticWhenPushWonTheRace(t *testing.T) {
	t0 := time.Now()
	optimistic := wire.NewVisitorText("hello", t0)
	list := []wire.Message{optimistic}

	// The duplex push delivered the confirmed message before the send
	// response came back.
	list, added := insertMessage(list, msgAt("srv-42", t0))
	require.True(t, added)

	list, ok := confirmMessage(list, optimistic.ID, "srv-42", t0)
	require.True(t, ok)
	require.Equal(t, []string{"srv-42"}, ids(list))
}

func TestConfirmMessage_UnknownTempID(t *testing.T) {
	list := []wire.Message{msgAt("a", time.Now())}
	out, ok := confirmMessage(list, "tmp-missing", "srv-1", time.Now())
	require.False(t, ok)
	require.Equal(t, list, out)
}

func TestRemoveMessage(t *testing.T) {
	t0 := time.Now()
	list := []wire.Message{msgAt("a", t0), msgAt("b", t0), msgAt("c", t0)}
	list = removeMessage(list, "b")
	require.Equal(t, []string{"a", "c"}, ids(list))

	list = removeMessage(list, "missing")
	require.Equal(t, []string{"a", "c"}, ids(list))
}
