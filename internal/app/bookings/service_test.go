package bookings

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	membookingrepo "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/bookingrepo"
	memlocker "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/locker"
	memmemberrepo "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/memberrepo"
	memtxn "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/txn"
	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/bookingrepo"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/memberrepo"
)

const (
	memberX   domain.MemberID  = "member-x"
	memberY   domain.MemberID  = "member-y"
	memberZ   domain.MemberID  = "member-z"
	sessionS1 domain.SessionID = "session-1"
)

// stateB is a capacity-1 session with X (BASIC, 8 credits) confirmed and Y (PREMIUM,
// yCredits) waitlisted. It returns both bookings.
func stateB(t *testing.T, f *fixture, yCredits int) (x, y *domain.Booking) {
	t.Helper()
	f.addSession(t, sessionS1, 1)
	f.addMember(t, memberX, domain.TierBasic, 8)
	f.addMember(t, memberY, domain.TierPremium, yCredits)

	x, err := f.svc.Reserve(context.Background(), memberX, sessionS1)
	if err != nil {
		t.Fatalf("Reserve(X) err=%v", err)
	}
	y, err = f.svc.Reserve(context.Background(), memberY, sessionS1)
	if err != nil {
		t.Fatalf("Reserve(Y) err=%v", err)
	}
	f.sink.Reset()
	return x, y
}

func TestReserve_ConfirmsWhenThereIsRoom(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSession(t, sessionS1, 1)
	f.addMember(t, memberX, domain.TierBasic, 8)

	b, err := f.svc.Reserve(context.Background(), memberX, sessionS1)
	if err != nil {
		t.Fatalf("Reserve err=%v", err)
	}
	if b.Status() != domain.BookingStatusConfirmed {
		t.Fatalf("status=%s, want CONFIRMED", b.Status())
	}
	if got := f.credits(t, memberX); got != 7 {
		t.Fatalf("credits=%d, want 7", got)
	}
	if s := f.session(t, sessionS1); !sameIDs(s.Confirmed(), memberX) || len(s.Waitlist()) != 0 {
		t.Fatalf("confirmed=%v waitlist=%v, want [X] []", s.Confirmed(), s.Waitlist())
	}
	if names := f.sink.Names(); !sameNames(names, "BookingConfirmed") {
		t.Fatalf("events=%v, want [BookingConfirmed]", names)
	}
	if got := f.booking(t, b.ID()); got.Status() != domain.BookingStatusConfirmed {
		t.Fatalf("stored status=%s", got.Status())
	}
}

func TestReserve_PremiumJoinsWaitlistWhenFull(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSession(t, sessionS1, 1)
	f.addMember(t, memberX, domain.TierBasic, 8)
	f.addMember(t, memberY, domain.TierPremium, 20)
	if _, err := f.svc.Reserve(context.Background(), memberX, sessionS1); err != nil {
		t.Fatalf("Reserve(X) err=%v", err)
	}
	f.sink.Reset()

	b, err := f.svc.Reserve(context.Background(), memberY, sessionS1)
	if err != nil {
		t.Fatalf("Reserve(Y) err=%v", err)
	}
	if b.Status() != domain.BookingStatusWaitlisted {
		t.Fatalf("status=%s, want WAITLISTED", b.Status())
	}
	if got := f.credits(t, memberY); got != 20 {
		t.Fatalf("Y credits=%d, want 20 (unchanged)", got)
	}
	if s := f.session(t, sessionS1); !sameIDs(s.Waitlist(), memberY) || !sameIDs(s.Confirmed(), memberX) {
		t.Fatalf("confirmed=%v waitlist=%v", s.Confirmed(), s.Waitlist())
	}
	events := f.sink.Events()
	if len(events) != 1 {
		t.Fatalf("events=%v, want one AddedToWaitlist", f.sink.Names())
	}
	added, ok := events[0].(domain.AddedToWaitlist)
	if !ok || added.Position != 1 || added.MemberID != memberY {
		t.Fatalf("event=%#v, want AddedToWaitlist at position 1", events[0])
	}
}

func TestReserve_BasicRejectedWhenFull(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSession(t, sessionS1, 1)
	f.addMember(t, memberX, domain.TierBasic, 8)
	f.addMember(t, memberY, domain.TierBasic, 8)
	if _, err := f.svc.Reserve(context.Background(), memberX, sessionS1); err != nil {
		t.Fatalf("Reserve(X) err=%v", err)
	}
	f.sink.Reset()

	_, err := f.svc.Reserve(context.Background(), memberY, sessionS1)
	if !errors.Is(err, domain.ErrSessionFull) || !errors.Is(err, domain.ErrBusinessRule) {
		t.Fatalf("Reserve(Y) err=%v, want ErrSessionFull", err)
	}
	if s := f.session(t, sessionS1); len(s.Waitlist()) != 0 {
		t.Fatalf("waitlist=%v, want empty", s.Waitlist())
	}
	if got := f.credits(t, memberY); got != 8 {
		t.Fatalf("Y credits=%d, want 8", got)
	}
	list, err := f.svc.ListForSession(context.Background(), sessionS1)
	if err != nil {
		t.Fatalf("ListForSession err=%v", err)
	}
	if len(list) != 1 || list[0].MemberID() != memberX {
		t.Fatalf("bookings=%d, want only X's", len(list))
	}
	if len(f.sink.Events()) != 0 {
		t.Fatalf("events=%v, want none", f.sink.Names())
	}
}

func TestCancel_RefundsAndPromotesHeadOfWaitlist(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	x, y := stateB(t, f, 20)

	cancelled, err := f.svc.Cancel(context.Background(), x.ID())
	if err != nil {
		t.Fatalf("Cancel err=%v", err)
	}
	if cancelled.Status() != domain.BookingStatusCancelled || cancelled.CancelledAt() == nil {
		t.Fatalf("cancelled=%+v", cancelled.Snapshot())
	}
	if got := f.credits(t, memberX); got != 8 {
		t.Fatalf("X credits=%d, want 8 (refunded)", got)
	}
	if got := f.booking(t, y.ID()).Status(); got != domain.BookingStatusConfirmed {
		t.Fatalf("Y status=%s, want CONFIRMED", got)
	}
	if got := f.credits(t, memberY); got != 19 {
		t.Fatalf("Y credits=%d, want 19", got)
	}
	s := f.session(t, sessionS1)
	if !sameIDs(s.Confirmed(), memberY) || len(s.Waitlist()) != 0 {
		t.Fatalf("confirmed=%v waitlist=%v, want [Y] []", s.Confirmed(), s.Waitlist())
	}
	if names := f.sink.Names(); !sameNames(names, "BookingCancelled", "PromotedFromWaitlist") {
		t.Fatalf("events=%v", names)
	}
	ev := f.sink.Events()[0].(domain.BookingCancelled)
	if !ev.CreditRefunded || ev.PreviousStatus != domain.BookingStatusConfirmed {
		t.Fatalf("BookingCancelled=%#v", ev)
	}
}

func TestCancel_RefundExtendsExpiry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	x, _ := stateB(t, f, 20)
	before := f.member(t, memberX).CreditsExpireAt()

	f.clk.Advance(24 * time.Hour)
	if _, err := f.svc.Cancel(context.Background(), x.ID()); err != nil {
		t.Fatalf("Cancel err=%v", err)
	}
	after := f.member(t, memberX).CreditsExpireAt()
	want := f.clk.Now().Add(30 * 24 * time.Hour)
	if after == nil || after.Before(want) || (before != nil && after.Before(*before)) {
		t.Fatalf("expiry before=%v after=%v, want >= %v", before, after, want)
	}
}

func TestCancel_InsideCutoffIsRejectedWithoutSideEffects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	x, y := stateB(t, f, 20)
	f.clk.Set(sessionStart.Add(-time.Hour))

	_, err := f.svc.Cancel(context.Background(), x.ID())
	if !errors.Is(err, domain.ErrNotCancellable) {
		t.Fatalf("Cancel err=%v, want ErrNotCancellable", err)
	}
	if got := f.booking(t, x.ID()).Status(); got != domain.BookingStatusConfirmed {
		t.Fatalf("X status=%s", got)
	}
	if got := f.booking(t, y.ID()).Status(); got != domain.BookingStatusWaitlisted {
		t.Fatalf("Y status=%s", got)
	}
	if got := f.credits(t, memberX); got != 7 {
		t.Fatalf("X credits=%d, want 7", got)
	}
	s := f.session(t, sessionS1)
	if !sameIDs(s.Confirmed(), memberX) || !sameIDs(s.Waitlist(), memberY) {
		t.Fatalf("confirmed=%v waitlist=%v", s.Confirmed(), s.Waitlist())
	}
	if len(f.sink.Events()) != 0 {
		t.Fatalf("events=%v, want none", f.sink.Names())
	}
}

func TestCancel_ExactlyAtCutoffIsRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	x, _ := stateB(t, f, 20)
	f.clk.Set(sessionStart.Add(-domain.CancellationCutoff))

	if _, err := f.svc.Cancel(context.Background(), x.ID()); !errors.Is(err, domain.ErrNotCancellable) {
		t.Fatalf("Cancel err=%v, want ErrNotCancellable", err)
	}
}

func TestCancel_SkipsPromotionWithoutCredit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	x, y := stateB(t, f, 0)

	if _, err := f.svc.Cancel(context.Background(), x.ID()); err != nil {
		t.Fatalf("Cancel err=%v", err)
	}
	yb := f.booking(t, y.ID())
	if yb.Status() != domain.BookingStatusCancelled || yb.CancelledAt() == nil {
		t.Fatalf("Y status=%s, want CANCELLED", yb.Status())
	}
	if got := f.credits(t, memberY); got != 0 {
		t.Fatalf("Y credits=%d, want 0", got)
	}
	s := f.session(t, sessionS1)
	if len(s.Confirmed()) != 0 || len(s.Waitlist()) != 0 {
		t.Fatalf("confirmed=%v waitlist=%v, want both empty", s.Confirmed(), s.Waitlist())
	}
	if names := f.sink.Names(); !sameNames(names, "BookingCancelled", "SkippedInsufficientCredits") {
		t.Fatalf("events=%v", names)
	}
}

func TestCancel_PromotionFallsThroughToNextPayingMember(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	x, y := stateB(t, f, 0)
	f.addMember(t, memberZ, domain.TierPremium, 5)
	z, err := f.svc.Reserve(context.Background(), memberZ, sessionS1)
	if err != nil {
		t.Fatalf("Reserve(Z) err=%v", err)
	}
	f.sink.Reset()

	if _, err := f.svc.Cancel(context.Background(), x.ID()); err != nil {
		t.Fatalf("Cancel err=%v", err)
	}
	if got := f.booking(t, y.ID()).Status(); got != domain.BookingStatusCancelled {
		t.Fatalf("Y status=%s, want CANCELLED", got)
	}
	if got := f.booking(t, z.ID()).Status(); got != domain.BookingStatusConfirmed {
		t.Fatalf("Z status=%s, want CONFIRMED", got)
	}
	if got := f.credits(t, memberZ); got != 4 {
		t.Fatalf("Z credits=%d, want 4", got)
	}
	s := f.session(t, sessionS1)
	if !sameIDs(s.Confirmed(), memberZ) || len(s.Waitlist()) != 0 {
		t.Fatalf("confirmed=%v waitlist=%v", s.Confirmed(), s.Waitlist())
	}
	if names := f.sink.Names(); !sameNames(names, "BookingCancelled", "SkippedInsufficientCredits", "PromotedFromWaitlist") {
		t.Fatalf("events=%v", names)
	}
}

func TestCancel_AlreadyCancelledIsRejectedWithoutSideEffects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSession(t, sessionS1, 2)
	f.addMember(t, memberX, domain.TierBasic, 8)
	b, err := f.svc.Reserve(context.Background(), memberX, sessionS1)
	if err != nil {
		t.Fatalf("Reserve err=%v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), b.ID()); err != nil {
		t.Fatalf("Cancel err=%v", err)
	}
	f.sink.Reset()
	before := f.member(t, memberX).Snapshot()

	if _, err := f.svc.Cancel(context.Background(), b.ID()); !errors.Is(err, domain.ErrNotCancellable) {
		t.Fatalf("second Cancel err=%v, want ErrNotCancellable", err)
	}
	after := f.member(t, memberX).Snapshot()
	if after.Credits != before.Credits || after.Version != before.Version {
		t.Fatalf("member changed: before=%+v after=%+v", before, after)
	}
	if len(f.sink.Events()) != 0 {
		t.Fatalf("events=%v, want none", f.sink.Names())
	}
}

func TestCancel_WaitlistedLeavesQueueWithoutRefund(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, y := stateB(t, f, 20)

	if _, err := f.svc.Cancel(context.Background(), y.ID()); err != nil {
		t.Fatalf("Cancel err=%v", err)
	}
	if got := f.credits(t, memberY); got != 20 {
		t.Fatalf("Y credits=%d, want 20", got)
	}
	s := f.session(t, sessionS1)
	if !sameIDs(s.Confirmed(), memberX) || len(s.Waitlist()) != 0 {
		t.Fatalf("confirmed=%v waitlist=%v", s.Confirmed(), s.Waitlist())
	}
	ev, ok := f.sink.Events()[0].(domain.BookingCancelled)
	if !ok || ev.CreditRefunded || ev.PreviousStatus != domain.BookingStatusWaitlisted {
		t.Fatalf("event=%#v", f.sink.Events()[0])
	}
}

func TestReserve_DuplicateBooking(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSession(t, sessionS1, 5)
	f.addMember(t, memberX, domain.TierBasic, 8)
	if _, err := f.svc.Reserve(context.Background(), memberX, sessionS1); err != nil {
		t.Fatalf("Reserve err=%v", err)
	}
	if _, err := f.svc.Reserve(context.Background(), memberX, sessionS1); !errors.Is(err, domain.ErrDuplicateBooking) {
		t.Fatalf("second Reserve err=%v, want ErrDuplicateBooking", err)
	}
	if got := f.credits(t, memberX); got != 7 {
		t.Fatalf("credits=%d, want 7", got)
	}
}

func TestReserve_AfterCancelBooksAgain(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSession(t, sessionS1, 5)
	f.addMember(t, memberX, domain.TierBasic, 8)
	b, err := f.svc.Reserve(context.Background(), memberX, sessionS1)
	if err != nil {
		t.Fatalf("Reserve err=%v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), b.ID()); err != nil {
		t.Fatalf("Cancel err=%v", err)
	}
	again, err := f.svc.Reserve(context.Background(), memberX, sessionS1)
	if err != nil {
		t.Fatalf("Reserve again err=%v", err)
	}
	if again.ID() == b.ID() || again.Status() != domain.BookingStatusConfirmed {
		t.Fatalf("again=%+v", again.Snapshot())
	}
}

func TestReserve_InsufficientCredit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSession(t, sessionS1, 5)
	f.addMember(t, memberX, domain.TierBasic, 0)

	if _, err := f.svc.Reserve(context.Background(), memberX, sessionS1); !errors.Is(err, domain.ErrInsufficientCredit) {
		t.Fatalf("Reserve err=%v, want ErrInsufficientCredit", err)
	}
	if s := f.session(t, sessionS1); len(s.Confirmed()) != 0 {
		t.Fatalf("confirmed=%v, want empty", s.Confirmed())
	}
}

func TestReserve_ExpiredCreditsCountAsZero(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSession(t, sessionS1, 5)
	f.addMember(t, memberX, domain.TierBasic, 8)

	rec, err := f.members.GetByID(context.Background(), memberX)
	if err != nil {
		t.Fatalf("GetByID err=%v", err)
	}
	past := f.clk.Now().Add(-time.Minute)
	rec.CreditsExpireAt = &past
	if err := f.members.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save err=%v", err)
	}

	if _, err := f.svc.Reserve(context.Background(), memberX, sessionS1); !errors.Is(err, domain.ErrInsufficientCredit) {
		t.Fatalf("Reserve err=%v, want ErrInsufficientCredit", err)
	}
}

func TestReserve_UnknownMemberOrSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSession(t, sessionS1, 5)
	f.addMember(t, memberX, domain.TierBasic, 8)

	_, err := f.svc.Reserve(context.Background(), "nobody", sessionS1)
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "member" || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Reserve unknown member err=%v", err)
	}
	_, err = f.svc.Reserve(context.Background(), memberX, "nowhere")
	if !errors.As(err, &nf) || nf.Kind != "session" {
		t.Fatalf("Reserve unknown session err=%v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), "no-booking"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Cancel unknown booking err=%v", err)
	}
}

func TestReserve_NotificationFailureDoesNotFailReservation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSession(t, sessionS1, 1)
	f.addMember(t, memberX, domain.TierBasic, 8)
	f.sink.Err = errors.New("broker down")

	b, err := f.svc.Reserve(context.Background(), memberX, sessionS1)
	if err != nil {
		t.Fatalf("Reserve err=%v", err)
	}
	if got := f.booking(t, b.ID()).Status(); got != domain.BookingStatusConfirmed {
		t.Fatalf("status=%s", got)
	}
}

func TestAttendance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	x, y := stateB(t, f, 20)

	attended, err := f.svc.MarkAttended(context.Background(), x.ID())
	if err != nil {
		t.Fatalf("MarkAttended err=%v", err)
	}
	if attended.Status() != domain.BookingStatusAttended {
		t.Fatalf("status=%s", attended.Status())
	}
	if _, err := f.svc.Cancel(context.Background(), x.ID()); !errors.Is(err, domain.ErrNotCancellable) {
		t.Fatalf("Cancel attended err=%v, want ErrNotCancellable", err)
	}
	if _, err := f.svc.MarkNoShow(context.Background(), x.ID()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("MarkNoShow attended err=%v, want ErrValidation", err)
	}
	if _, err := f.svc.MarkNoShow(context.Background(), y.ID()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("MarkNoShow waitlisted err=%v, want ErrValidation", err)
	}
}

func TestListForMember(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	stateB(t, f, 20)

	got, err := f.svc.ListForMember(context.Background(), memberY)
	if err != nil {
		t.Fatalf("ListForMember err=%v", err)
	}
	if len(got) != 1 || got[0].Status() != domain.BookingStatusWaitlisted {
		t.Fatalf("bookings=%d", len(got))
	}
	if _, err := f.svc.ListForMember(context.Background(), "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ListForMember unknown err=%v", err)
	}
}

func TestReserve_ConcurrentCallsNeverOverbook(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	const capacity, callers = 3, 20
	f.addSession(t, sessionS1, capacity)
	ids := make([]domain.MemberID, callers)
	for i := range ids {
		ids[i] = domain.MemberID("m-" + string(rune('a'+i)))
		f.addMember(t, ids[i], domain.TierBasic, 8)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
		full      int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id domain.MemberID) {
			defer wg.Done()
			_, err := f.svc.Reserve(context.Background(), id, sessionS1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, domain.ErrSessionFull):
				full++
			default:
				t.Errorf("Reserve(%s) err=%v", id, err)
			}
		}(id)
	}
	wg.Wait()

	if confirmed != capacity || full != callers-capacity {
		t.Fatalf("confirmed=%d full=%d, want %d/%d", confirmed, full, capacity, callers-capacity)
	}
	if s := f.session(t, sessionS1); len(s.Confirmed()) != capacity {
		t.Fatalf("session confirmed=%d, want %d", len(s.Confirmed()), capacity)
	}
}

func TestReserve_ConcurrentSessionsShareOneCreditSafely(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addMember(t, memberX, domain.TierBasic, 1)
	sessions := []domain.SessionID{"session-a", "session-b", "session-c"}
	for _, id := range sessions {
		f.addSession(t, id, 5)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		errs []error
	)
	for _, id := range sessions {
		wg.Add(1)
		go func(id domain.SessionID) {
			defer wg.Done()
			_, err := f.svc.Reserve(context.Background(), memberX, id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks++
				return
			}
			errs = append(errs, err)
		}(id)
	}
	wg.Wait()

	if oks != 1 {
		t.Fatalf("successful reservations=%d, want 1 (errs=%v)", oks, errs)
	}
	for _, err := range errs {
		if !errors.Is(err, domain.ErrInsufficientCredit) {
			t.Fatalf("err=%v, want ErrInsufficientCredit", err)
		}
	}
	if got := f.credits(t, memberX); got != 0 {
		t.Fatalf("credits=%d, want 0", got)
	}
}

// racingMembers hands out a stale copy of target once, after another writer has
// already bumped it, as a concurrent reservation in a different session would.
type racingMembers struct {
	*memmemberrepo.Repo

	mu     sync.Mutex
	target domain.MemberID
}

func (r *racingMembers) GetByID(ctx context.Context, id domain.MemberID) (memberrepo.Member, error) {
	rec, err := r.Repo.GetByID(ctx, id)
	if err != nil {
		return rec, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.target {
		r.target = ""
		if err := r.Repo.Save(ctx, rec); err != nil {
			return memberrepo.Member{}, err
		}
	}
	return rec, nil
}

func TestCancel_StalePromotedMemberRetriesWithoutDoubleRefund(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	x, y := stateB(t, f, 20)

	log := logrus.New()
	log.SetOutput(io.Discard)
	svc := NewService(Deps{
		Members:  &racingMembers{Repo: f.members, target: memberY},
		Sessions: f.sessions,
		Bookings: f.bookings,
		Locks:    memlocker.New(),
		Tx:       memtxn.NewManager(),
		Sink:     f.sink,
		Clock:    f.clk,
		Logger:   log,
	})

	if _, err := svc.Cancel(context.Background(), x.ID()); err != nil {
		t.Fatalf("Cancel err=%v", err)
	}
	if got := f.credits(t, memberX); got != 8 {
		t.Fatalf("X credits=%d, want 8 (refunded once)", got)
	}
	if got := f.credits(t, memberY); got != 19 {
		t.Fatalf("Y credits=%d, want 19", got)
	}
	if got := f.booking(t, y.ID()).Status(); got != domain.BookingStatusConfirmed {
		t.Fatalf("Y status=%s, want CONFIRMED", got)
	}
	if names := f.sink.Names(); !sameNames(names, "BookingCancelled", "PromotedFromWaitlist") {
		t.Fatalf("events=%v", names)
	}
}

// settlingBookings records target as attended on the given read of it, then hands
// the caller the copy it read before that write.
type settlingBookings struct {
	*membookingrepo.Repo

	mu     sync.Mutex
	target domain.BookingID
	onRead int
}

func (r *settlingBookings) GetByID(ctx context.Context, id domain.BookingID) (bookingrepo.Booking, error) {
	rec, err := r.Repo.GetByID(ctx, id)
	if err != nil {
		return rec, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != r.target {
		return rec, nil
	}
	r.onRead--
	if r.onRead == 0 {
		attended := rec
		attended.Status = domain.BookingStatusAttended
		if err := r.Repo.Save(ctx, attended); err != nil {
			return bookingrepo.Booking{}, err
		}
	}
	return rec, nil
}

func TestCancel_StaleBookingLeavesNothingWritten(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	x, y := stateB(t, f, 5)

	log := logrus.New()
	log.SetOutput(io.Discard)
	// Read 1 picks the lock, read 2 is the one the cancellation is decided on.
	svc := NewService(Deps{
		Members:  f.members,
		Sessions: f.sessions,
		Bookings: &settlingBookings{Repo: f.bookings, target: x.ID(), onRead: 2},
		Locks:    memlocker.New(),
		Tx:       memtxn.NewManager(),
		Sink:     f.sink,
		Clock:    f.clk,
		Logger:   log,
	})

	if _, err := svc.Cancel(context.Background(), x.ID()); !errors.Is(err, domain.ErrNotCancellable) {
		t.Fatalf("Cancel err=%v, want ErrNotCancellable", err)
	}
	if got := f.booking(t, x.ID()).Status(); got != domain.BookingStatusAttended {
		t.Fatalf("X status=%s, want ATTENDED", got)
	}
	if got := f.credits(t, memberX); got != 7 {
		t.Fatalf("X credits=%d, want 7 (no refund)", got)
	}
	if got := f.booking(t, y.ID()).Status(); got != domain.BookingStatusWaitlisted {
		t.Fatalf("Y status=%s, want WAITLISTED", got)
	}
	if got := f.credits(t, memberY); got != 5 {
		t.Fatalf("Y credits=%d, want 5 (not charged)", got)
	}
	s := f.session(t, sessionS1)
	if !sameIDs(s.Confirmed(), memberX) || !sameIDs(s.Waitlist(), memberY) {
		t.Fatalf("confirmed=%v waitlist=%v, want [X] [Y]", s.Confirmed(), s.Waitlist())
	}
	if names := f.sink.Names(); len(names) != 0 {
		t.Fatalf("events=%v, want none", names)
	}
}

func TestAttendanceAndCancelRacingStayConsistent(t *testing.T) {
	t.Parallel()

	for i := 0; i < 25; i++ {
		f := newFixture(t)
		x, y := stateB(t, f, 5)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Cancel(context.Background(), x.ID())
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.MarkAttended(context.Background(), x.ID())
		}()
		wg.Wait()

		s := f.session(t, sessionS1)
		switch got := f.booking(t, x.ID()).Status(); got {
		case domain.BookingStatusCancelled:
			if f.credits(t, memberX) != 8 || f.credits(t, memberY) != 4 ||
				f.booking(t, y.ID()).Status() != domain.BookingStatusConfirmed ||
				!sameIDs(s.Confirmed(), memberY) || len(s.Waitlist()) != 0 {
				t.Fatalf("run %d: cancel won but state is inconsistent: confirmed=%v waitlist=%v", i, s.Confirmed(), s.Waitlist())
			}
		case domain.BookingStatusAttended:
			if f.credits(t, memberX) != 7 || f.credits(t, memberY) != 5 ||
				f.booking(t, y.ID()).Status() != domain.BookingStatusWaitlisted ||
				!sameIDs(s.Confirmed(), memberX) || !sameIDs(s.Waitlist(), memberY) {
				t.Fatalf("run %d: attendance won but state is inconsistent: confirmed=%v waitlist=%v", i, s.Confirmed(), s.Waitlist())
			}
		default:
			t.Fatalf("run %d: X status=%s", i, got)
		}
	}
}
