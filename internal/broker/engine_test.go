package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/akarczewski/go-msgbroker/internal/stats"
	"github.com/akarczewski/go-msgbroker/internal/store"
	"github.com/akarczewski/go-msgbroker/internal/testutil"
	"github.com/akarczewski/go-msgbroker/internal/types"
)

// newTestBroker wires a broker to a file store in a temp dir. Stats
// expectations are relaxed since most tests don't care about counters.
func newTestBroker(t *testing.T) *Broker {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	repo, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err, "failed to create file store")
	t.Cleanup(func() { repo.Close() })

	return New(testutil.TestLogger(t), repo, su)
}

// loginUser registers a mailbox and binds a user to it directly through the
// store, returning the user and the mailbox channel.
func loginUser(t *testing.T, b *Broker, name string) (types.User, <-chan *ServerMessage) {
	t.Helper()

	mb, ch := b.dir.Register()
	user, _, err := b.repo.UpsertUser(name, mb)
	require.NoError(t, err, "failed to log in %s", name)
	return user, ch
}

func recvDelivery(t *testing.T, ch <-chan *ServerMessage) *types.Delivery {
	t.Helper()

	select {
	case msg := <-ch:
		require.NotNil(t, msg.Delivery, "expected a delivery, got %+v", msg)
		return msg.Delivery
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func assertNoMessage(t *testing.T, ch <-chan *ServerMessage) {
	t.Helper()

	select {
	case msg := <-ch:
		t.Fatalf("expected empty mailbox, got %+v", msg)
	default:
	}
}

func TestEngineJoin(t *testing.T) {
	b := newTestBroker(t)
	user, _ := loginUser(t, b, "alice")

	t.Run("missing room", func(t *testing.T) {
		_, err := b.engine.Join("nowhere", user.Id, 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	room, err := b.repo.CreateRoom("general")
	require.NoError(t, err)

	t.Run("first join", func(t *testing.T) {
		res, err := b.engine.Join("general", user.Id, 5)
		require.NoError(t, err)
		assert.Equal(t, Joined, res)
	})

	t.Run("rejoin updates the budget in place", func(t *testing.T) {
		res, err := b.engine.Join("general", user.Id, types.UnlimitedBudget)
		require.NoError(t, err)
		assert.Equal(t, Changed, res)

		subs, err := b.repo.RoomSubscriptions(room.Id)
		require.NoError(t, err)
		require.Len(t, subs, 1, "expected one subscription row, not a duplicate")
		assert.Equal(t, types.UnlimitedBudget, subs[0].Remaining)
	})
}

func TestEnginePublishCountdown(t *testing.T) {
	b := newTestBroker(t)
	user, ch := loginUser(t, b, "alice")

	room, err := b.repo.CreateRoom("general")
	require.NoError(t, err)
	_, err = b.engine.Join("general", user.Id, 2)
	require.NoError(t, err)

	msg := &types.Delivery{Author: "bob", RoomName: "general", Body: "hi", Priority: 5}

	for i := 0; i < 2; i++ {
		n, err := b.engine.Publish(room, msg)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "publish %d should reach alice", i+1)

		got := recvDelivery(t, ch)
		assert.Equal(t, "hi", got.Body)
		assert.Equal(t, 5, got.Priority)
	}

	// budget exhausted: third publish reaches nobody and the row is gone
	n, err := b.engine.Publish(room, msg)
	require.NoError(t, err)
	assert.Zero(t, n)
	assertNoMessage(t, ch)

	subs, err := b.repo.RoomSubscriptions(room.Id)
	require.NoError(t, err)
	assert.Empty(t, subs, "expected expired subscription to be deleted")
}

func TestEnginePublishUnlimited(t *testing.T) {
	b := newTestBroker(t)
	user, ch := loginUser(t, b, "alice")

	room, err := b.repo.CreateRoom("firehose")
	require.NoError(t, err)
	_, err = b.engine.Join("firehose", user.Id, types.UnlimitedBudget)
	require.NoError(t, err)

	msg := &types.Delivery{Author: "bob", RoomName: "firehose", Body: "tick", Priority: 1}

	for i := 0; i < 1000; i++ {
		n, err := b.engine.Publish(room, msg)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		recvDelivery(t, ch)
	}

	subs, err := b.repo.RoomSubscriptions(room.Id)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, types.UnlimitedBudget, subs[0].Remaining, "unlimited budget must never count down")
}

func TestEnginePublishOfflineSubscriber(t *testing.T) {
	b := newTestBroker(t)
	user, ch := loginUser(t, b, "alice")

	room, err := b.repo.CreateRoom("general")
	require.NoError(t, err)
	_, err = b.engine.Join("general", user.Id, 2)
	require.NoError(t, err)

	// alice logs out; her budget is still consumed by publishes
	require.NoError(t, b.repo.ClearMailbox(user.Mailbox))

	msg := &types.Delivery{Author: "bob", RoomName: "general", Body: "hi", Priority: 5}

	n, err := b.engine.Publish(room, msg)
	require.NoError(t, err)
	assert.Zero(t, n, "offline subscriber gets nothing")
	assertNoMessage(t, ch)

	subs, err := b.repo.RoomSubscriptions(room.Id)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 1, subs[0].Remaining, "budget is consumed even when delivery is skipped")

	n, err = b.engine.Publish(room, msg)
	require.NoError(t, err)
	assert.Zero(t, n)

	subs, err = b.repo.RoomSubscriptions(room.Id)
	require.NoError(t, err)
	assert.Empty(t, subs, "subscription expires by count regardless of delivery")
}

func TestEnginePublishMixedSubscribers(t *testing.T) {
	b := newTestBroker(t)

	alice, aliceCh := loginUser(t, b, "alice")
	bob, bobCh := loginUser(t, b, "bob")
	carol, carolCh := loginUser(t, b, "carol")

	room, err := b.repo.CreateRoom("general")
	require.NoError(t, err)

	_, err = b.engine.Join("general", alice.Id, 1)
	require.NoError(t, err)
	_, err = b.engine.Join("general", bob.Id, types.UnlimitedBudget)
	require.NoError(t, err)
	_, err = b.engine.Join("general", carol.Id, 3)
	require.NoError(t, err)

	msg := &types.Delivery{Author: "dave", RoomName: "general", Body: "all hands", Priority: 10}

	n, err := b.engine.Publish(room, msg)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	recvDelivery(t, aliceCh)
	recvDelivery(t, bobCh)
	recvDelivery(t, carolCh)

	// alice's single-shot subscription is gone, the others remain
	n, err = b.engine.Publish(room, msg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assertNoMessage(t, aliceCh)
	recvDelivery(t, bobCh)
	recvDelivery(t, carolCh)

	subs, err := b.repo.RoomSubscriptions(room.Id)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, bob.Id, subs[0].UserId, "stored order survives the rewrite")
	assert.Equal(t, carol.Id, subs[1].UserId)
	assert.Equal(t, 1, subs[1].Remaining)
}
