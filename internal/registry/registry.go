// Package registry tracks connected subscribers, their live subscription
// sets, and the durable per-identity subscription state that survives
// disconnect/reconnect. It is intentionally unsynchronized: the dispatcher
// goroutine is its sole caller, which is what lets the broker avoid locks
// entirely (see internal/dispatcher).
package registry

import "topicbroker/internal/topic"

// Handle identifies one live connection. Assigned by the dispatcher at
// admission time; stable for the life of that connection.
type Handle uint64

// Subscriber is the live, in-memory record for one connected subscriber.
type Subscriber struct {
	Identity string
	Subs     map[string]struct{}
	// Seq orders subscribers by admission order, used by the forwarder so
	// that fan-out order is deterministic rather than relying on Go's
	// intentionally-randomized native map iteration.
	Seq uint64
}

// Registry is the broker's subscriber directory: by_handle, by_identity,
// and persisted, exactly as described in spec §3/§4.4.
type Registry struct {
	byHandle   map[Handle]*Subscriber
	byIdentity map[string]Handle
	persisted  map[string]map[string]struct{}
	matcher    *topic.Cache
	nextSeq    uint64
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		byHandle:   make(map[Handle]*Subscriber),
		byIdentity: make(map[string]Handle),
		persisted:  make(map[string]map[string]struct{}),
		matcher:    topic.NewCache(),
	}
}

// Admit registers a newly-handshaken connection under identity. It returns
// false if identity is already live on another handle — the caller must
// close the new connection and log "Client <id> already connected." without
// mutating any state. On success, the identity's persisted subscription set
// (empty if this is the first time the identity has ever connected) is
// restored as the connection's live set.
func (r *Registry) Admit(handle Handle, identity string) bool {
	if _, live := r.byIdentity[identity]; live {
		return false
	}

	persisted, ok := r.persisted[identity]
	if !ok {
		persisted = make(map[string]struct{})
		r.persisted[identity] = persisted
	}

	live := make(map[string]struct{}, len(persisted))
	for topicPattern := range persisted {
		live[topicPattern] = struct{}{}
	}

	r.nextSeq++
	r.byHandle[handle] = &Subscriber{Identity: identity, Subs: live, Seq: r.nextSeq}
	r.byIdentity[identity] = handle
	return true
}

// Subscribe adds topicPattern to handle's live subscriptions and to its
// identity's persisted set. A no-op if handle is not currently admitted.
func (r *Registry) Subscribe(handle Handle, topicPattern string) {
	sub, ok := r.byHandle[handle]
	if !ok {
		return
	}
	sub.Subs[topicPattern] = struct{}{}
	r.persisted[sub.Identity][topicPattern] = struct{}{}
}

// Unsubscribe removes topicPattern from handle's live subscriptions and
// from its identity's persisted set.
func (r *Registry) Unsubscribe(handle Handle, topicPattern string) {
	sub, ok := r.byHandle[handle]
	if !ok {
		return
	}
	delete(sub.Subs, topicPattern)
	delete(r.persisted[sub.Identity], topicPattern)
}

// Disconnect removes handle from the live registry. The identity's
// persisted subscriptions are left untouched so a later Admit under the
// same identity restores them. Returns the identity that was disconnected
// and whether handle was actually live.
func (r *Registry) Disconnect(handle Handle) (identity string, ok bool) {
	sub, ok := r.byHandle[handle]
	if !ok {
		return "", false
	}
	delete(r.byHandle, handle)
	if r.byIdentity[sub.Identity] == handle {
		delete(r.byIdentity, sub.Identity)
	}
	return sub.Identity, true
}

// Identity returns the identity bound to handle, if still live.
func (r *Registry) Identity(handle Handle) (string, bool) {
	sub, ok := r.byHandle[handle]
	if !ok {
		return "", false
	}
	return sub.Identity, true
}

// Live reports whether identity currently has a connected handle.
func (r *Registry) Live(identity string) (Handle, bool) {
	h, ok := r.byIdentity[identity]
	return h, ok
}

// Matching returns the handles of every currently-live subscriber with at
// least one subscription pattern matching topic, ordered by admission
// sequence (oldest first). Each subscriber's pattern scan stops at its
// first match, per spec §4.6.
func (r *Registry) Matching(topicName string) []Handle {
	type seqHandle struct {
		seq    uint64
		handle Handle
	}
	var matches []seqHandle

	for handle, sub := range r.byHandle {
		for pattern := range sub.Subs {
			if r.matcher.Match(pattern, topicName) {
				matches = append(matches, seqHandle{seq: sub.Seq, handle: handle})
				break
			}
		}
	}

	// Insertion sort: subscriber counts are small and this keeps ordering
	// stable without pulling in sort for a handful of elements.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j-1].seq > matches[j].seq; j-- {
			matches[j-1], matches[j] = matches[j], matches[j-1]
		}
	}

	out := make([]Handle, len(matches))
	for i, m := range matches {
		out[i] = m.handle
	}
	return out
}

// Count returns the number of currently-live subscribers.
func (r *Registry) Count() int {
	return len(r.byHandle)
}
