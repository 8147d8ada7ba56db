package bookings

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	membookingrepo "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/bookingrepo"
	memclock "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/clock"
	memlocker "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/locker"
	memmemberrepo "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/memberrepo"
	memnotify "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/notify"
	memsessionrepo "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/sessionrepo"
	memtxn "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/txn"
	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/memberrepo"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/sessionrepo"
)

// sessionStart is Monday 2030-01-07 09:00 UTC; fixtures start the clock two days earlier.
var sessionStart = time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	members  *memmemberrepo.Repo
	sessions *memsessionrepo.Repo
	bookings *membookingrepo.Repo
	sink     *memnotify.Recorder
	clk      *memclock.ManualClock
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		members:  memmemberrepo.NewRepo(),
		sessions: memsessionrepo.NewRepo(),
		bookings: membookingrepo.NewRepo(),
		sink:     memnotify.NewRecorder(),
		clk:      memclock.NewManualClock(sessionStart.Add(-48 * time.Hour)),
	}
	f.svc = NewService(Deps{
		Members:          f.members,
		Sessions:         f.sessions,
		Bookings:         f.bookings,
		Locks:            memlocker.New(),
		Tx:               memtxn.NewManager(),
		Sink:             f.sink,
		Clock:            f.clk,
		Logger:           log,
		RefundExpiryDays: 30,
	})
	return f
}

func (f *fixture) addMember(t testing.TB, id domain.MemberID, tier domain.Tier, credits int) {
	t.Helper()
	email, err := domain.NewEmailAddress(string(id) + "@example.com")
	if err != nil {
		t.Fatalf("NewEmailAddress err=%v", err)
	}
	m, err := domain.NewMember(id, "Member "+string(id), email, tier, f.clk.Now())
	if err != nil {
		t.Fatalf("NewMember err=%v", err)
	}
	snap := m.Snapshot()
	snap.Credits = credits
	m, err = domain.RestoreMember(snap)
	if err != nil {
		t.Fatalf("RestoreMember err=%v", err)
	}
	if err := f.members.Create(context.Background(), memberrepo.FromDomain(m)); err != nil {
		t.Fatalf("Create member err=%v", err)
	}
}

func (f *fixture) addSession(t testing.TB, id domain.SessionID, capacity int) {
	t.Helper()
	c, err := domain.NewCapacity(capacity)
	if err != nil {
		t.Fatalf("NewCapacity err=%v", err)
	}
	slot, err := domain.NewTimeSlot(time.Monday, domain.TimeOfDay(9*60), domain.TimeOfDay(10*60))
	if err != nil {
		t.Fatalf("NewTimeSlot err=%v", err)
	}
	s, err := domain.NewSession(id, "Session "+string(id), c, sessionStart, slot, f.clk.Now())
	if err != nil {
		t.Fatalf("NewSession err=%v", err)
	}
	if err := f.sessions.Create(context.Background(), sessionrepo.FromDomain(s)); err != nil {
		t.Fatalf("Create session err=%v", err)
	}
}

func (f *fixture) member(t testing.TB, id domain.MemberID) *domain.Member {
	t.Helper()
	rec, err := f.members.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) err=%v", id, err)
	}
	m, err := rec.ToDomain()
	if err != nil {
		t.Fatalf("ToDomain err=%v", err)
	}
	return m
}

func (f *fixture) credits(t testing.TB, id domain.MemberID) int {
	t.Helper()
	return f.member(t, id).EffectiveCredits(f.clk.Now())
}

func (f *fixture) session(t testing.TB, id domain.SessionID) *domain.Session {
	t.Helper()
	rec, err := f.sessions.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) err=%v", id, err)
	}
	s, err := rec.ToDomain()
	if err != nil {
		t.Fatalf("ToDomain err=%v", err)
	}
	return s
}

func (f *fixture) booking(t testing.TB, id domain.BookingID) *domain.Booking {
	t.Helper()
	b, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) err=%v", id, err)
	}
	return b
}

func sameIDs(got []domain.MemberID, want ...domain.MemberID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func sameNames(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
