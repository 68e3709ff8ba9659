package app

import (
	"context"
	"testing"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/clock"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/cimillas/checkout-ledger/services/api/internal/events"
)

func TestReconcileService_Reconcile(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	guestOrder := func(id string, owner domain.Owner, created time.Time) domain.Order {
		o := pendingOrder(id, created, time.Hour)
		o.Owner = owner
		return o
	}
	guest := domain.GuestOwner("abc")

	t.Run("connects the guest's orders in creation order", func(t *testing.T) {
		repo := newFakeOrderRepo(
			guestOrder("b", guest, now.Add(-time.Hour)),
			guestOrder("a", guest, now.Add(-2*time.Hour)),
			guestOrder("c", domain.GuestOwner("other"), now.Add(-time.Hour)),
			guestOrder("d", domain.AccountOwner("user-2"), now.Add(-time.Hour)),
		)
		pub := &recordingPublisher{}
		svc := NewReconcileService(repo, clock.NewFixed(now), WithPublisher(pub))

		res, err := svc.Reconcile(context.Background(), "guest_abc", "user-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.ConnectedCount != 2 || len(res.ConnectedOrders) != 2 {
			t.Fatalf("expected 2 connected orders, got %+v", res)
		}
		if res.ConnectedOrders[0].ID != "a" || res.ConnectedOrders[1].ID != "b" {
			t.Fatalf("expected [a b], got [%s %s]", res.ConnectedOrders[0].ID, res.ConnectedOrders[1].ID)
		}
		for _, o := range res.ConnectedOrders {
			if o.Owner != domain.AccountOwner("user-1") || o.ConnectedAt == nil || !o.ConnectedAt.Equal(now) {
				t.Fatalf("unexpected connected order: %+v", o)
			}
		}
		if !repo.get("c").Owner.IsGuest() || repo.get("d").Owner != domain.AccountOwner("user-2") {
			t.Fatalf("orders of other owners must not move")
		}
		if got := pub.types(); len(got) != 1 || got[0] != events.TypeOrdersLinked {
			t.Fatalf("expected orders.connected event, got %v", got)
		}
	})

	t.Run("second run finds nothing", func(t *testing.T) {
		repo := newFakeOrderRepo(guestOrder("a", guest, now.Add(-time.Hour)))
		pub := &recordingPublisher{}
		svc := NewReconcileService(repo, clock.NewFixed(now), WithPublisher(pub))

		if _, err := svc.Reconcile(context.Background(), "guest_abc", "user-1"); err != nil {
			t.Fatalf("first run: %v", err)
		}
		res, err := svc.Reconcile(context.Background(), "guest_abc", "user-1")
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if res.ConnectedCount != 0 || res.ConnectedOrders == nil || len(res.ConnectedOrders) != 0 {
			t.Fatalf("expected empty non-nil result, got %+v", res)
		}
		if len(pub.types()) != 1 {
			t.Fatalf("expected no event for an empty run, got %v", pub.types())
		}
	})

	t.Run("orders placed after the snapshot stay with the guest", func(t *testing.T) {
		repo := newFakeOrderRepo(
			guestOrder("a", guest, now.Add(-time.Minute)),
			guestOrder("late", guest, now.Add(time.Second)),
		)
		svc := NewReconcileService(repo, clock.NewFixed(now))

		res, err := svc.Reconcile(context.Background(), "guest_abc", "user-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.ConnectedCount != 1 || !repo.get("late").Owner.IsGuest() {
			t.Fatalf("expected only the snapshot order to move, got %+v", res)
		}
	})

	t.Run("rejects malformed ids", func(t *testing.T) {
		svc := NewReconcileService(newFakeOrderRepo(), clock.NewFixed(now))

		tests := []struct {
			name    string
			guest   string
			account string
			want    error
		}{
			{name: "guest without prefix", guest: "abc", account: "user-1", want: domain.ErrInvalidGuestID},
			{name: "empty guest token", guest: "guest_", account: "user-1", want: domain.ErrInvalidGuestID},
			{name: "guest as account", guest: "guest_abc", account: "guest_xyz", want: domain.ErrInvalidAccountID},
			{name: "empty account", guest: "guest_abc", account: "", want: domain.ErrInvalidAccountID},
		}
		for _, tc := range tests {
			if _, err := svc.Reconcile(context.Background(), tc.guest, tc.account); err != tc.want {
				t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
			}
		}
	})
}
