package widget

import (
	"time"

	"github.com/omnisupport/chatkit/pkg/wire"
)

// Message sequence operations. The sequence invariant: no duplicate ids,
// creation times non-decreasing, optimistic entries replaced in place by
// their confirmed counterpart.

// insertMessage adds m unless its id is already present, keeping the
// sequence ordered by creation time. Equal timestamps keep arrival order.
func insertMessage(list []wire.Message, m wire.Message) ([]wire.Message, bool) {
	for _, existing := range list {
		if existing.ID == m.ID {
			return list, false
		}
	}
	i := len(list)
	for i > 0 && list[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	out := make([]wire.Message, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, m)
	out = append(out, list[i:]...)
	return out, true
}

// confirmMessage swaps the optimistic entry's identity for the server-issued
// one at the same position. If a duplex push already delivered the confirmed
// message, the optimistic entry is removed instead so the id stays unique.
func confirmMessage(list []wire.Message, tempID, confirmedID string, at time.Time) ([]wire.Message, bool) {
	confirmedSeen := false
	for _, m := range list {
		if m.ID == confirmedID {
			confirmedSeen = true
			break
		}
	}
	for i := range list {
		if list[i].ID != tempID {
			continue
		}
		if confirmedSeen {
			return removeMessage(list, tempID), true
		}
		list[i].ID = confirmedID
		if !at.IsZero() {
			list[i].CreatedAt = at
		}
		return list, true
	}
	return list, false
}

// removeMessage deletes the entry with the given id, if present.
func removeMessage(list []wire.Message, id string) []wire.Message {
	out := make([]wire.Message, 0, len(list))
	for _, m := range list {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
