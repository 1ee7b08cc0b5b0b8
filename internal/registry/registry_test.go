package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdmitRejectsDuplicateIdentity(t *testing.T) {
	r := New()
	require.True(t, r.Admit(1, "alice"))
	require.False(t, r.Admit(2, "alice"))
	require.Equal(t, 1, r.Count())
}

func TestSubscriptionsSurviveDisconnectAndReconnect(t *testing.T) {
	r := New()
	require.True(t, r.Admit(1, "alice"))
	r.Subscribe(1, "sensors/+")

	identity, ok := r.Disconnect(1)
	require.True(t, ok)
	require.Equal(t, "alice", identity)
	require.Equal(t, 0, r.Count())

	require.True(t, r.Admit(2, "alice"))
	matches := r.Matching("sensors/temp")
	require.Equal(t, []Handle{2}, matches)
}

func TestReconnectUnderNewIdentityGetsNoInheritedSubscriptions(t *testing.T) {
	r := New()
	require.True(t, r.Admit(1, "alice"))
	r.Subscribe(1, "sensors/+")
	r.Disconnect(1)

	require.True(t, r.Admit(2, "bob"))
	require.Empty(t, r.Matching("sensors/temp"))
}

func TestUnsubscribeRemovesFromLiveAndPersisted(t *testing.T) {
	r := New()
	require.True(t, r.Admit(1, "alice"))
	r.Subscribe(1, "a/b")
	r.Unsubscribe(1, "a/b")
	require.Empty(t, r.Matching("a/b"))

	r.Disconnect(1)
	require.True(t, r.Admit(2, "alice"))
	require.Empty(t, r.Matching("a/b"))
}

func TestMatchingOrdersByAdmissionSequence(t *testing.T) {
	r := New()
	require.True(t, r.Admit(10, "c"))
	require.True(t, r.Admit(20, "a"))
	require.True(t, r.Admit(30, "b"))

	r.Subscribe(10, "x")
	r.Subscribe(20, "x")
	r.Subscribe(30, "x")

	require.Equal(t, []Handle{10, 20, 30}, r.Matching("x"))
}

func TestMatchingOnlyReturnsLiveSubscribersWithAMatchingPattern(t *testing.T) {
	r := New()
	require.True(t, r.Admit(1, "alice"))
	require.True(t, r.Admit(2, "bob"))
	r.Subscribe(1, "a/*")
	r.Subscribe(2, "b/*")

	require.Equal(t, []Handle{1}, r.Matching("a/1"))
}

func TestDisconnectUnknownHandleIsNoop(t *testing.T) {
	r := New()
	_, ok := r.Disconnect(999)
	require.False(t, ok)
}

func TestIdentityAndLive(t *testing.T) {
	r := New()
	require.True(t, r.Admit(1, "alice"))

	identity, ok := r.Identity(1)
	require.True(t, ok)
	require.Equal(t, "alice", identity)

	handle, ok := r.Live("alice")
	require.True(t, ok)
	require.Equal(t, Handle(1), handle)

	r.Disconnect(1)
	_, ok = r.Live("alice")
	require.False(t, ok)
}

func TestSubscribeAndUnsubscribeOnUnknownHandleAreNoops(t *testing.T) {
	r := New()
	r.Subscribe(42, "a/b")
	r.Unsubscribe(42, "a/b")
	require.Empty(t, r.Matching("a/b"))
}
