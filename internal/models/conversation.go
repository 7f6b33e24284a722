package models

import "net/netip"

// ConversationKey identifies a bidirectional flow between two addresses.
// A is never greater than B, so swapping source and destination yields the same key.
type ConversationKey struct {
	A netip.Addr
	B netip.Addr
}

func NewConversationKey(x, y netip.Addr) ConversationKey {
	if y.Less(x) {
		x, y = y, x
	}
	return ConversationKey{A: x, B: y}
}

// Compare orders keys by A, then B.
func (k ConversationKey) Compare(o ConversationKey) int {
	if c := k.A.Compare(o.A); c != 0 {
		return c
	}
	return k.B.Compare(o.B)
}

func (k ConversationKey) String() string {
	return k.A.String() + " <-> " + k.B.String()
}
