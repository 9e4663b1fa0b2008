package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memory"
)

type fixture struct {
	clock         *calendar.FixedClock
	cal           *calendar.Calendar
	appointments  *memory.Appointments
	notifications *memory.Notifications
	dispatcher    *notify.Dispatcher
	scheduler     *Scheduler
	calc          *availability.Calculator
}

// 2024-01-10 09:30 UTC, business hours 08-18 with hourly slots and a 2h cancellation lead time.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := calendar.NewFixedClock(time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC))
	cal, err := calendar.New(calendar.Options{
		Location:             time.UTC,
		Hours:                calendar.Hours{StartHour: 8, EndHour: 18, SlotDuration: time.Hour},
		CancellationLeadTime: 2 * time.Hour,
		Clock:                clock,
	})
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := memory.NewUsers(
		model.User{ID: "prov-1", Name: "Dr. Ada", Provider: true},
		model.User{ID: "prov-2", Name: "Dr. Grace", Provider: true},
		model.User{ID: "client-1", Name: "Jane Doe"},
		model.User{ID: "client-2", Name: "John Roe"},
	)
	appts := memory.NewAppointments(clock.Now)
	notes := memory.NewNotifications(clock.Now)
	dispatcher := notify.NewDispatcher(notes, logger)
	dir := directory.New(users, 16, time.Minute)
	return &fixture{
		clock:         clock,
		cal:           cal,
		appointments:  appts,
		notifications: notes,
		dispatcher:    dispatcher,
		scheduler:     New(cal, appts, dir, dispatcher, logger),
		calc:          availability.NewCalculator(cal, appts),
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 1, 10, hour, minute, 0, 0, time.UTC)
}

func TestBookCreatesAppointmentAndNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.scheduler.Book(ctx, "client-1", "prov-1", at(10, 0))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if appt.ID == "" || !appt.Active() || !appt.ScheduledAt.Equal(at(10, 0)) {
		t.Fatalf("unexpected appointment %+v", appt)
	}

	notes, _ := f.dispatcher.ListForProvider(ctx, "prov-1", model.Page{})
	if len(notes) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notes))
	}
	if notes[0].Content != "New appointment with Jane Doe on Wednesday, January 10 at 10:00" || notes[0].Read {
		t.Fatalf("unexpected notification %+v", notes[0])
	}

	slots, _ := f.calc.AvailableSlots(ctx, "prov-1", at(0, 0))
	for _, s := range slots {
		if s.Time.Equal(at(10, 0)) && s.Available {
			t.Fatal("10:00 should be unavailable after booking")
		}
	}
}

func TestBookValidation(t *testing.T) {
	cases := []struct {
		name      string
		requester string
		provider  string
		when      time.Time
		want      apperr.Kind
	}{
		{"self booking", "prov-1", "prov-1", at(11, 0), apperr.KindValidation},
		{"missing provider", "client-1", "", at(11, 0), apperr.KindValidation},
		{"unknown provider", "client-1", "nobody", at(11, 0), apperr.KindValidation},
		{"not a provider", "client-1", "client-2", at(11, 0), apperr.KindValidation},
		{"past slot", "client-1", "prov-1", at(9, 0), apperr.KindPastDate},
		{"past day", "client-1", "prov-1", at(11, 0).AddDate(0, 0, -1), apperr.KindPastDate},
		{"off grid", "client-1", "prov-1", at(10, 30), apperr.KindInvalidSlot},
		{"after hours", "client-1", "prov-1", at(18, 0), apperr.KindInvalidSlot},
		{"before hours", "client-1", "prov-1", at(7, 0).AddDate(0, 0, 1), apperr.KindInvalidSlot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.scheduler.Book(context.Background(), tc.requester, tc.provider, tc.when)
			if got := apperr.KindOf(err); got != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
		})
	}
}

func TestBookNormalizesTimezone(t *testing.T) {
	f := newFixture(t)
	// 12:00 at UTC+2 is 10:00 UTC, a grid slot.
	local := time.Date(2024, 1, 10, 12, 0, 0, 0, time.FixedZone("UTC+2", 2*60*60))
	appt, err := f.scheduler.Book(context.Background(), "client-1", "prov-1", local)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if appt.ScheduledAt.Location() != time.UTC || appt.ScheduledAt.Hour() != 10 {
		t.Fatalf("expected 10:00 UTC, got %s", appt.ScheduledAt)
	}
}

func TestBookSameSlotTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.scheduler.Book(ctx, "client-1", "prov-1", at(14, 0)); err != nil {
		t.Fatalf("Book: %v", err)
	}
	_, err := f.scheduler.Book(ctx, "client-2", "prov-1", at(14, 0))
	if !apperr.Is(err, apperr.KindSlotTaken) {
		t.Fatalf("expected slot_taken, got %v", err)
	}
	if _, err := f.scheduler.Book(ctx, "client-2", "prov-2", at(14, 0)); err != nil {
		t.Fatalf("another provider's slot must be free: %v", err)
	}
}

func TestBookConcurrentExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			requester := "client-1"
			if i%2 == 1 {
				requester = "client-2"
			}
			_, err := f.scheduler.Book(ctx, requester, "prov-1", at(15, 0))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case apperr.Is(err, apperr.KindSlotTaken):
				losses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 || losses != n-1 {
		t.Fatalf("expected 1 win and %d slot_taken, got %d/%d", n-1, wins, losses)
	}
	active, _ := f.scheduler.ListForProvider(ctx, "prov-1", ListOptions{})
	if len(active) != 1 {
		t.Fatalf("expected exactly one active appointment, got %d", len(active))
	}
	notes, _ := f.dispatcher.ListForProvider(ctx, "prov-1", model.Page{})
	if len(notes) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notes))
	}
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) NotifyOnce(context.Context, string, string, string) (model.Notification, bool, error) {
	f.calls++
	return model.Notification{}, false, apperr.Storage("insert notification", errors.New("timeout"))
}

func TestBookSurvivesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	notifier := &failingNotifier{}
	f.scheduler.notifier = notifier

	appt, err := f.scheduler.Book(context.Background(), "client-1", "prov-1", at(16, 0))
	if err != nil {
		t.Fatalf("booking must succeed when notifications fail: %v", err)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected one notification attempt, got %d", notifier.calls)
	}
	if _, err := f.appointments.Get(context.Background(), appt.ID); err != nil {
		t.Fatalf("appointment must be persisted: %v", err)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("frees the slot and notifies", func(t *testing.T) {
		f := newFixture(t)
		appt, _ := f.scheduler.Book(ctx, "client-1", "prov-1", at(15, 0))
		cancelled, err := f.scheduler.Cancel(ctx, "client-1", appt.ID)
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if cancelled.Active() || !cancelled.CancelledAt.Equal(f.cal.Now()) {
			t.Fatalf("unexpected cancelled appointment %+v", cancelled)
		}
		slots, _ := f.calc.AvailableSlots(ctx, "prov-1", at(0, 0))
		for _, s := range slots {
			if s.Time.Equal(at(15, 0)) && !s.Available {
				t.Fatal("15:00 should be available again")
			}
		}
		notes, _ := f.dispatcher.ListForProvider(ctx, "prov-1", model.Page{})
		if len(notes) != 2 || notes[0].Content != "Jane Doe cancelled the appointment on Wednesday, January 10 at 15:00" {
			t.Fatalf("expected cancellation notification first, got %+v", notes)
		}
		// History is kept.
		all, _ := f.scheduler.ListForRequester(ctx, "client-1", ListOptions{IncludeCancelled: true})
		if len(all) != 1 || all[0].Status() != model.StatusCancelled {
			t.Fatalf("expected cancelled row in history, got %+v", all)
		}
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.scheduler.Cancel(ctx, "client-1", "missing")
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("expected not_found, got %v", err)
		}
	})

	t.Run("not the owner", func(t *testing.T) {
		f := newFixture(t)
		appt, _ := f.scheduler.Book(ctx, "client-1", "prov-1", at(15, 0))
		for _, who := range []string{"client-2", "prov-1"} {
			if _, err := f.scheduler.Cancel(ctx, who, appt.ID); !apperr.Is(err, apperr.KindForbidden) {
				t.Fatalf("%s: expected forbidden, got %v", who, err)
			}
		}
	})

	t.Run("already cancelled", func(t *testing.T) {
		f := newFixture(t)
		appt, _ := f.scheduler.Book(ctx, "client-1", "prov-1", at(15, 0))
		if _, err := f.scheduler.Cancel(ctx, "client-1", appt.ID); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if _, err := f.scheduler.Cancel(ctx, "client-1", appt.ID); !apperr.Is(err, apperr.KindAlreadyCancelled) {
			t.Fatalf("expected already_cancelled, got %v", err)
		}
	})

	t.Run("inside the lead time", func(t *testing.T) {
		f := newFixture(t)
		appt, _ := f.scheduler.Book(ctx, "client-1", "prov-1", at(11, 0))
		_, err := f.scheduler.Cancel(ctx, "client-1", appt.ID)
		if !apperr.Is(err, apperr.KindCancellationWindow) {
			t.Fatalf("expected cancellation_window, got %v", err)
		}
	})

	t.Run("exactly at the boundary", func(t *testing.T) {
		f := newFixture(t)
		appt, _ := f.scheduler.Book(ctx, "client-1", "prov-1", at(12, 0))
		f.clock.Set(at(10, 0))
		if _, err := f.scheduler.Cancel(ctx, "client-1", appt.ID); err != nil {
			t.Fatalf("cancelling exactly lead time ahead must succeed: %v", err)
		}
	})

	t.Run("one nanosecond late", func(t *testing.T) {
		f := newFixture(t)
		appt, _ := f.scheduler.Book(ctx, "client-1", "prov-1", at(12, 0))
		f.clock.Set(at(10, 0).Add(time.Nanosecond))
		if _, err := f.scheduler.Cancel(ctx, "client-1", appt.ID); !apperr.Is(err, apperr.KindCancellationWindow) {
			t.Fatalf("expected cancellation_window, got %v", err)
		}
	})
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, h := range []int{16, 11, 13} {
		if _, err := f.scheduler.Book(ctx, "client-1", "prov-1", at(h, 0)); err != nil {
			t.Fatalf("Book %d: %v", h, err)
		}
		f.clock.Advance(time.Minute)
	}

	provider, err := f.scheduler.ListForProvider(ctx, "prov-1", ListOptions{})
	if err != nil {
		t.Fatalf("ListForProvider: %v", err)
	}
	if provider[0].ScheduledAt.Hour() != 11 || provider[2].ScheduledAt.Hour() != 16 {
		t.Fatalf("provider view must be next appointment first: %+v", provider)
	}

	requester, _ := f.scheduler.ListForRequester(ctx, "client-1", ListOptions{})
	if requester[0].ScheduledAt.Hour() != 13 || requester[2].ScheduledAt.Hour() != 16 {
		t.Fatalf("requester view must be most recent first: %+v", requester)
	}

	page2, _ := f.scheduler.ListForRequester(ctx, "client-1", ListOptions{Page: model.Page{Number: 2, Size: 2}})
	if len(page2) != 1 || page2[0].ScheduledAt.Hour() != 16 {
		t.Fatalf("unexpected second page %+v", page2)
	}
}

func TestDaySchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.scheduler.Book(ctx, "client-1", "prov-1", at(12, 0)); err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := f.scheduler.Book(ctx, "client-1", "prov-1", at(12, 0).AddDate(0, 0, 1)); err != nil {
		t.Fatalf("Book: %v", err)
	}

	day, err := f.scheduler.DaySchedule(ctx, "prov-1", at(0, 0))
	if err != nil {
		t.Fatalf("DaySchedule: %v", err)
	}
	if len(day) != 1 || day[0].ScheduledAt.Hour() != 12 {
		t.Fatalf("unexpected schedule %+v", day)
	}
	if _, err := f.scheduler.DaySchedule(ctx, "client-1", at(0, 0)); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for a non-provider, got %v", err)
	}
}
