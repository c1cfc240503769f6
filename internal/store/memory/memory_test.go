package memory

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/alfredjeanlab/cmevents/internal/events"
	"github.com/alfredjeanlab/cmevents/internal/model"
	"github.com/alfredjeanlab/cmevents/internal/store"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ev(id int64, typ string, entityID int64, action model.EventAction, pct *int) model.Event {
	return model.Event{
		ID:              id,
		Action:          action,
		Status:          model.StatusStarted,
		Entity:          &model.Entity{ID: entityID, Type: typ},
		Created:         model.NewTimestamp(t0.Add(time.Duration(id) * time.Minute)),
		PercentComplete: pct,
	}
}

func pct(n int) *int { return &n }

func ids(events []model.Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestCache_ImplementsStore(t *testing.T) {
	var _ store.Store = (*Cache)(nil)
}

func TestCache_FollowsStreamNewestFirst(t *testing.T) {
	c := New(0)
	s := events.NewStream(nil)
	s.Subscribe(c.Listen)

	s.PublishBatch([]model.Event{
		ev(3, "linode", 1, model.ActionLinodeBoot, nil),
		ev(2, "linode", 1, model.ActionLinodeCreate, nil),
	})
	s.PublishBatch([]model.Event{ev(4, "volume", 9, model.ActionVolumeCreate, nil)})

	if got := ids(c.Events()); !slices.Equal(got, []int64{4, 3, 2}) {
		t.Errorf("cache order = %v, want [4 3 2]", got)
	}
}

func TestCache_ReplacesInPlace(t *testing.T) {
	c := New(0)
	c.Apply([]model.Event{
		ev(3, "linode", 1, model.ActionLinodeResize, pct(10)),
		ev(2, "linode", 1, model.ActionLinodeCreate, nil),
	})
	c.Listen(ev(3, "linode", 1, model.ActionLinodeResize, pct(60)))

	got := c.Events()
	if !slices.Equal(ids(got), []int64{3, 2}) {
		t.Fatalf("order = %v", ids(got))
	}
	if *got[0].PercentComplete != 60 {
		t.Errorf("percent = %d, want 60", *got[0].PercentComplete)
	}
	if c.InProgress()[3] != 60 {
		t.Errorf("in progress = %v", c.InProgress())
	}

	c.Listen(ev(3, "linode", 1, model.ActionLinodeResize, pct(100)))
	if _, ok := c.InProgress()[3]; ok {
		t.Error("finished event still in progress")
	}
}

func TestCache_MarkDeleted(t *testing.T) {
	c := New(0)
	c.Listen(ev(1, "linode", 5, model.ActionLinodeCreate, nil))
	c.Listen(ev(2, "linode", 6, model.ActionLinodeCreate, nil))
	del := ev(3, "linode", 5, model.ActionLinodeDelete, nil)
	c.Listen(del)

	for _, e := range c.Events() {
		switch e.Entity.ID {
		case 5:
			if e.Deleted == nil || !e.Deleted.Equal(del.Created.Time) {
				t.Errorf("event %d: deleted = %v, want %v", e.ID, e.Deleted, del.Created)
			}
		default:
			if e.Deleted != nil {
				t.Errorf("event %d for a live entity marked deleted", e.ID)
			}
		}
	}
}

func TestCache_Capacity(t *testing.T) {
	c := New(3)
	for id := int64(1); id <= 5; id++ {
		c.Listen(ev(id, "linode", id, model.ActionLinodeBoot, pct(10)))
	}
	if got := ids(c.Events()); !slices.Equal(got, []int64{5, 4, 3}) {
		t.Errorf("cache = %v, want the newest three", got)
	}
	inProg := c.InProgress()
	if _, ok := inProg[1]; ok {
		t.Error("evicted event still tracked as in progress")
	}
	if len(inProg) != 3 {
		t.Errorf("in progress = %v", inProg)
	}
}

func TestCache_MarkSeen(t *testing.T) {
	c := New(0)
	for id := int64(1); id <= 4; id++ {
		c.Listen(ev(id, "linode", 1, model.ActionLinodeBoot, nil))
	}
	n, err := c.MarkSeen(context.Background(), 2)
	if err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if n != 2 {
		t.Errorf("marked %d, want 2", n)
	}
	if c.Unseen() != 2 {
		t.Errorf("unseen = %d, want 2", c.Unseen())
	}

	n, _ = c.MarkSeen(context.Background(), 2)
	if n != 0 {
		t.Errorf("second MarkSeen marked %d, want 0", n)
	}

	// An update from the API that still says unseen must not undo it.
	c.Listen(ev(2, "linode", 1, model.ActionLinodeBoot, nil))
	got, err := c.GetEvent(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if !got.Seen {
		t.Error("update cleared seen")
	}
}

func TestCache_GetEventNotFound(t *testing.T) {
	c := New(0)
	_, err := c.GetEvent(context.Background(), 99)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCache_ListEvents(t *testing.T) {
	c := New(0)
	c.Apply([]model.Event{
		ev(5, "volume", 2, model.ActionVolumeCreate, nil),
		ev(4, "linode", 1, model.ActionLinodeReboot, pct(30)),
		ev(3, "linode", 1, model.ActionLinodeBoot, nil),
		ev(2, "linode", 7, model.ActionLinodeCreate, nil),
		ev(1, "firewall", 3, model.ActionFirewallCreate, nil),
	})
	_, _ = c.MarkSeen(context.Background(), 1)
	ctx := context.Background()

	for _, tc := range []struct {
		name      string
		filter    model.EventFilter
		wantIDs   []int64
		wantTotal int
	}{
		{"default newest first", model.EventFilter{}, []int64{5, 4, 3, 2, 1}, 5},
		{"entity type", model.EventFilter{EntityType: "linode"}, []int64{4, 3, 2}, 3},
		{"unseen", model.EventFilter{Unseen: true, Sort: "id"}, []int64{2, 3, 4, 5}, 4},
		{"action", model.EventFilter{Action: []model.EventAction{model.ActionLinodeBoot, model.ActionVolumeCreate}}, []int64{5, 3}, 2},
		{"page 2", model.EventFilter{Page: 2, PageSize: 2}, []int64{3, 2}, 5},
		{"page clamped", model.EventFilter{Page: 9, PageSize: 2}, []int64{1}, 5},
		{"sort by percent", model.EventFilter{Sort: "-percent_complete", EntityType: "linode"}, []int64{4, 3, 2}, 3},
		{"sort by entity type", model.EventFilter{Sort: "entity_type"}, []int64{1, 4, 3, 2, 5}, 5},
		{"unknown sort falls back", model.EventFilter{Sort: "bogus"}, []int64{5, 4, 3, 2, 1}, 5},
		{"no match", model.EventFilter{EntityType: "domain"}, []int64{}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, total, err := c.ListEvents(ctx, tc.filter)
			if err != nil {
				t.Fatalf("ListEvents: %v", err)
			}
			if total != tc.wantTotal {
				t.Errorf("total = %d, want %d", total, tc.wantTotal)
			}
			if !slices.Equal(ids(got), tc.wantIDs) {
				t.Errorf("ids = %v, want %v", ids(got), tc.wantIDs)
			}
		})
	}
}
