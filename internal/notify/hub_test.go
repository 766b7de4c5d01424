package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablesheet/internal/domain"
)

func textRow(col, v string) domain.Row {
	return domain.Row{Cells: []domain.Cell{{Column: col, Type: domain.ColumnText, Value: &v}}}
}

func waitNext(t *testing.T, sub *Subscriber) Snapshot {
	t.Helper()
	select {
	case <-sub.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	snap, ok := sub.Next()
	require.True(t, ok)
	return snap
}

func TestHub_PublishReachesSubscribersOfTable(t *testing.T) {
	t.Parallel()
	hub := NewHub(4, nil)

	a := hub.Subscribe("t1")
	b := hub.Subscribe("t1")
	other := hub.Subscribe("t2")
	t.Cleanup(func() {
		hub.Unsubscribe(a)
		hub.Unsubscribe(b)
		hub.Unsubscribe(other)
	})

	hub.Publish("t1", []domain.Row{textRow("Email", "a@x.com")})

	for _, sub := range []*Subscriber{a, b} {
		snap := waitNext(t, sub)
		assert.Equal(t, "t1", snap.TableID)
		require.Len(t, snap.Rows, 1)
	}

	time.Sleep(20 * time.Millisecond)
	_, ok := other.Next()
	assert.False(t, ok, "t2 subscriber must not see t1 snapshots")
}

func TestHub_BroadcastIsolation(t *testing.T) {
	t.Parallel()
	hub := NewHub(4, nil)

	leaving := hub.Subscribe("t1")
	staying := hub.Subscribe("t1")
	t.Cleanup(func() { hub.Unsubscribe(staying) })

	hub.Unsubscribe(leaving)
	hub.Unsubscribe(leaving)

	hub.Publish("t1", []domain.Row{textRow("Email", "later@x.com")})

	snap := waitNext(t, staying)
	v := *snap.Rows[0].Cells[0].Value
	assert.Equal(t, "later@x.com", v)

	select {
	case <-leaving.Done():
	default:
		t.Fatal("unsubscribed subscriber should be done")
	}
	_, ok := leaving.Next()
	assert.False(t, ok)
}

func TestHub_HasSubscribers(t *testing.T) {
	t.Parallel()
	hub := NewHub(0, nil)

	assert.False(t, hub.HasSubscribers("t1"))
	sub := hub.Subscribe("t1")
	assert.True(t, hub.HasSubscribers("t1"))
	assert.Equal(t, []string{"t1"}, hub.Tables())

	hub.Unsubscribe(sub)
	assert.False(t, hub.HasSubscribers("t1"))
	assert.Empty(t, hub.Tables())
}

func TestSubscriber_DropsOldestWhenFull(t *testing.T) {
	t.Parallel()
	sub := newSubscriber("t1", 2)

	for _, v := range []string{"1", "2", "3"} {
		sub.push(Snapshot{TableID: "t1", Rows: []domain.Row{textRow("n", v)}})
	}

	assert.EqualValues(t, 1, sub.Dropped())

	first, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, "2", *first.Rows[0].Cells[0].Value)
	second, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, "3", *second.Rows[0].Cells[0].Value)
	_, ok = sub.Next()
	assert.False(t, ok)
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	t.Parallel()
	hub := NewHub(1, nil)
	assert.NotPanics(t, func() { hub.Publish("nobody", nil) })
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	t.Parallel()
	hub := NewHub(4, nil)

	a := hub.Subscribe("t1")
	b := hub.Subscribe("t2")

	hub.Close()

	for _, sub := range []*Subscriber{a, b} {
		select {
		case <-sub.Done():
		default:
			t.Fatalf("subscriber for %s should be done after Close", sub.TableID())
		}
	}
	assert.Empty(t, hub.Tables())

	late := hub.Subscribe("t1")
	select {
	case <-late.Done():
	default:
		t.Fatal("subscriber created after Close should be done")
	}
	assert.False(t, hub.HasSubscribers("t1"))
	assert.NotPanics(t, func() { hub.Unsubscribe(late) })
}
