package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memory"
)

type countingUsers struct {
	storage.UserStore
	calls int
	err   error
}

func (c *countingUsers) GetUser(ctx context.Context, id string) (model.User, error) {
	c.calls++
	if c.err != nil {
		return model.User{}, c.err
	}
	return c.UserStore.GetUser(ctx, id)
}

func TestDirectoryCachesHits(t *testing.T) {
	users := &countingUsers{UserStore: memory.NewUsers(model.User{ID: "p1", Name: "Dr. Ada", Provider: true})}
	d := New(users, 8, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := d.IsProvider(ctx, "p1")
		if err != nil || !ok {
			t.Fatalf("IsProvider: %v %v", ok, err)
		}
	}
	if users.calls != 1 {
		t.Fatalf("expected a single store call, got %d", users.calls)
	}
	name, _ := d.DisplayName(ctx, "p1")
	if name != "Dr. Ada" {
		t.Fatalf("unexpected name %q", name)
	}
}

func TestDirectoryEntriesExpire(t *testing.T) {
	users := &countingUsers{UserStore: memory.NewUsers(model.User{ID: "p1", Name: "Dr. Ada", Provider: true})}
	d := New(users, 8, 20*time.Millisecond)
	ctx := context.Background()

	_, _ = d.Exists(ctx, "p1")
	time.Sleep(50 * time.Millisecond)
	_, _ = d.Exists(ctx, "p1")
	if users.calls != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", users.calls)
	}
}

func TestDirectoryMissesAreNotCached(t *testing.T) {
	store := memory.NewUsers()
	users := &countingUsers{UserStore: store}
	d := New(users, 8, time.Minute)
	ctx := context.Background()

	if ok, _ := d.Exists(ctx, "u1"); ok {
		t.Fatal("expected unknown user")
	}
	if _, err := store.CreateUser(ctx, model.User{ID: "u1", Name: "Late", Email: "late@example.com"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if ok, _ := d.Exists(ctx, "u1"); !ok {
		t.Fatal("expected user to be visible once created")
	}
	if name, _ := d.DisplayName(ctx, "ghost"); name != "ghost" {
		t.Fatalf("expected id fallback, got %q", name)
	}
}

func TestDirectoryPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	d := New(&countingUsers{UserStore: memory.NewUsers(), err: boom}, 8, time.Minute)
	if _, err := d.IsProvider(context.Background(), "p1"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
