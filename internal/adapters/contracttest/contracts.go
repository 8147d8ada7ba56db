package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	bookingrepoport "github.com/Overland-East-Bay/class-booking-api/internal/ports/out/bookingrepo"
	idempotencyport "github.com/Overland-East-Bay/class-booking-api/internal/ports/out/idempotency"
	lockerport "github.com/Overland-East-Bay/class-booking-api/internal/ports/out/locker"
	memberrepoport "github.com/Overland-East-Bay/class-booking-api/internal/ports/out/memberrepo"
	sessionrepoport "github.com/Overland-East-Bay/class-booking-api/internal/ports/out/sessionrepo"
)

type CleanupFunc = func()

type MemberRepoFactory func(t *testing.T) (memberrepoport.Repository, CleanupFunc)
type SessionRepoFactory func(t *testing.T) (sessionrepoport.Repository, CleanupFunc)
type BookingRepoFactory func(t *testing.T) (bookingrepoport.Repository, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)
type LockerFactory func(t *testing.T) (lockerport.Locker, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	key := idempotencyport.Key("k-" + uuid.NewString())
	fp := idempotencyport.Fingerprint{
		Key:      key,
		Method:   "POST",
		Route:    "/bookings",
		BodyHash: "",
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get before Put: ok=%v err=%v", ok, err)
	}
	rec := idempotencyport.Record{
		StatusCode:  0,
		ContentType: "text/plain",
		Body:        []byte("hash-abc"),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Body) != "hash-abc" || got.ContentType != "text/plain" || got.StatusCode != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte("hash-def")
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != "hash-def" {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}

	// The response record is keyed separately by body hash.
	respFP := fp
	respFP.BodyHash = "hash-def"
	if err := store.Put(ctx, respFP, idempotencyport.Record{
		StatusCode:  201,
		ContentType: "application/json",
		Body:        []byte(`{"id":"b1"}`),
		CreatedAt:   time.Unix(124, 0).UTC(),
	}); err != nil {
		t.Fatalf("Put response: %v", err)
	}
	got, ok, err = store.Get(ctx, respFP)
	if err != nil || !ok || got.StatusCode != 201 {
		t.Fatalf("Get response: ok=%v err=%v rec=%+v", ok, err, got)
	}
}

func RunMemberRepo(t *testing.T, newRepo MemberRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	expires := now.Add(domain.RenewalWindow)
	suffix := uuid.NewString()[:8]
	aID := domain.MemberID(uuid.NewString())
	aEmail := "alice-" + suffix + "@example.com"
	if err := repo.Create(ctx, memberrepoport.Member{
		ID:              aID,
		DisplayName:     "Alice Johnson",
		Email:           aEmail,
		Tier:            domain.TierPremium,
		Credits:         20,
		CreditsExpireAt: &expires,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	got, err := repo.GetByID(ctx, aID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Version != 1 || got.Credits != 20 || got.Tier != domain.TierPremium {
		t.Fatalf("unexpected member after Create: %+v", got)
	}
	if got.CreditsExpireAt == nil || !got.CreditsExpireAt.Equal(expires) {
		t.Fatalf("CreditsExpireAt=%v, want %v", got.CreditsExpireAt, expires)
	}
	if _, err := repo.GetByEmail(ctx, "  ALICE-"+suffix+"@Example.com "); err != nil {
		t.Fatalf("GetByEmail (case-insensitive): %v", err)
	}

	// Uniqueness.
	if err := repo.Create(ctx, memberrepoport.Member{
		ID:          aID,
		DisplayName: "Alice 2",
		Email:       "alice2-" + suffix + "@example.com",
		Tier:        domain.TierBasic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); !errors.Is(err, memberrepoport.ErrAlreadyExists) {
		t.Fatalf("Create duplicate id err=%v, want ErrAlreadyExists", err)
	}
	if err := repo.Create(ctx, memberrepoport.Member{
		ID:          domain.MemberID(uuid.NewString()),
		DisplayName: "Alice 3",
		Email:       aEmail,
		Tier:        domain.TierBasic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); !errors.Is(err, memberrepoport.ErrEmailAlreadyInUse) {
		t.Fatalf("Create duplicate email err=%v, want ErrEmailAlreadyInUse", err)
	}

	// Save is a compare-and-swap on Version.
	got.Credits = 19
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, got); !errors.Is(err, memberrepoport.ErrVersionConflict) {
		t.Fatalf("stale Save err=%v, want ErrVersionConflict", err)
	}
	after, err := repo.GetByID(ctx, aID)
	if err != nil {
		t.Fatalf("GetByID after Save: %v", err)
	}
	if after.Version != 2 || after.Credits != 19 {
		t.Fatalf("after Save: %+v, want version=2 credits=19", after)
	}

	// Nil expiry round-trips.
	after.CreditsExpireAt = nil
	if err := repo.Save(ctx, after); err != nil {
		t.Fatalf("Save nil expiry: %v", err)
	}
	if again, err := repo.GetByID(ctx, aID); err != nil || again.CreditsExpireAt != nil {
		t.Fatalf("GetByID nil expiry: %+v err=%v", again, err)
	}

	missing := domain.MemberID(uuid.NewString())
	if _, err := repo.GetByID(ctx, missing); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("GetByID missing err=%v, want ErrNotFound", err)
	}
	if err := repo.Save(ctx, memberrepoport.Member{ID: missing, Email: "nobody-" + suffix + "@example.com", Tier: domain.TierBasic, Version: 1}); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("Save missing err=%v, want ErrNotFound", err)
	}
	if _, err := repo.GetByEmail(ctx, "nobody-"+suffix+"@example.com"); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("GetByEmail missing err=%v, want ErrNotFound", err)
	}
}

func RunSessionRepo(t *testing.T, newRepo SessionRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(2000, 0).UTC()
	id := domain.SessionID(uuid.NewString())
	s := sessionrepoport.Session{
		ID:        id,
		Name:      "Morning Flow",
		Capacity:  2,
		Date:      time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC),
		Day:       time.Monday,
		StartTime: domain.TimeOfDay(9 * 60),
		EndTime:   domain.TimeOfDay(10 * 60),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, s); !errors.Is(err, sessionrepoport.ErrAlreadyExists) {
		t.Fatalf("Create duplicate err=%v, want ErrAlreadyExists", err)
	}

	got, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Version != 1 || got.Capacity != 2 || got.Day != time.Monday || got.StartTime != s.StartTime || got.EndTime != s.EndTime {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.Date.Equal(s.Date) {
		t.Fatalf("Date=%v, want %v", got.Date, s.Date)
	}
	if len(got.Confirmed) != 0 || len(got.Waitlist) != 0 {
		t.Fatalf("expected empty rosters, got %+v", got)
	}

	// Roster order is preserved.
	m1 := domain.MemberID(uuid.NewString())
	m2 := domain.MemberID(uuid.NewString())
	w1 := domain.MemberID(uuid.NewString())
	w2 := domain.MemberID(uuid.NewString())
	got.Confirmed = []domain.MemberID{m2, m1}
	got.Waitlist = []domain.MemberID{w2, w1}
	got.UpdatedAt = now.Add(time.Minute)
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, got); !errors.Is(err, sessionrepoport.ErrVersionConflict) {
		t.Fatalf("stale Save err=%v, want ErrVersionConflict", err)
	}
	after, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID after Save: %v", err)
	}
	if after.Version != 2 {
		t.Fatalf("Version=%d, want 2", after.Version)
	}
	if len(after.Confirmed) != 2 || after.Confirmed[0] != m2 || after.Confirmed[1] != m1 {
		t.Fatalf("Confirmed=%v, want [%s %s]", after.Confirmed, m2, m1)
	}
	if len(after.Waitlist) != 2 || after.Waitlist[0] != w2 || after.Waitlist[1] != w1 {
		t.Fatalf("Waitlist=%v, want [%s %s]", after.Waitlist, w2, w1)
	}

	missing := domain.SessionID(uuid.NewString())
	if _, err := repo.GetByID(ctx, missing); !errors.Is(err, sessionrepoport.ErrNotFound) {
		t.Fatalf("GetByID missing err=%v, want ErrNotFound", err)
	}
	s.ID = missing
	s.Version = 1
	if err := repo.Save(ctx, s); !errors.Is(err, sessionrepoport.ErrNotFound) {
		t.Fatalf("Save missing err=%v, want ErrNotFound", err)
	}
}

func RunBookingRepo(t *testing.T, newRepo BookingRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(3000, 0).UTC()
	memberID := domain.MemberID(uuid.NewString())
	sessionID := domain.SessionID(uuid.NewString())

	first := bookingrepoport.Booking{
		ID:        domain.BookingID(uuid.NewString()),
		MemberID:  memberID,
		SessionID: sessionID,
		Status:    domain.BookingStatusConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, first); !errors.Is(err, bookingrepoport.ErrAlreadyExists) {
		t.Fatalf("Create duplicate id err=%v, want ErrAlreadyExists", err)
	}

	// One active booking per (member, session).
	second := first
	second.ID = domain.BookingID(uuid.NewString())
	second.CreatedAt = now.Add(time.Second)
	second.UpdatedAt = second.CreatedAt
	if err := repo.Create(ctx, second); !errors.Is(err, bookingrepoport.ErrActiveBookingExists) {
		t.Fatalf("Create second active err=%v, want ErrActiveBookingExists", err)
	}

	active, err := repo.FindActiveByMemberAndSession(ctx, memberID, sessionID)
	if err != nil {
		t.Fatalf("FindActiveByMemberAndSession: %v", err)
	}
	if active.ID != first.ID || active.Version != 1 {
		t.Fatalf("unexpected active booking: %+v", active)
	}

	// Cancelling frees the pair.
	cancelledAt := now.Add(time.Minute)
	active.Status = domain.BookingStatusCancelled
	active.CancelledAt = &cancelledAt
	active.UpdatedAt = cancelledAt
	if err := repo.Save(ctx, active); err != nil {
		t.Fatalf("Save cancel: %v", err)
	}
	if err := repo.Save(ctx, active); !errors.Is(err, bookingrepoport.ErrVersionConflict) {
		t.Fatalf("stale Save err=%v, want ErrVersionConflict", err)
	}
	if _, err := repo.FindActiveByMemberAndSession(ctx, memberID, sessionID); !errors.Is(err, bookingrepoport.ErrNotFound) {
		t.Fatalf("FindActive after cancel err=%v, want ErrNotFound", err)
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create after cancel: %v", err)
	}

	got, err := repo.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.BookingStatusCancelled || got.CancelledAt == nil || !got.CancelledAt.Equal(cancelledAt) || got.Version != 2 {
		t.Fatalf("unexpected cancelled booking: %+v", got)
	}

	// Another member in the same session.
	otherMember := domain.MemberID(uuid.NewString())
	third := bookingrepoport.Booking{
		ID:        domain.BookingID(uuid.NewString()),
		MemberID:  otherMember,
		SessionID: sessionID,
		Status:    domain.BookingStatusWaitlisted,
		CreatedAt: now.Add(2 * time.Second),
		UpdatedAt: now.Add(2 * time.Second),
	}
	if err := repo.Create(ctx, third); err != nil {
		t.Fatalf("Create third: %v", err)
	}

	bySession, err := repo.ListBySession(ctx, sessionID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(bySession) != 3 || bySession[0].ID != first.ID || bySession[1].ID != second.ID || bySession[2].ID != third.ID {
		t.Fatalf("unexpected ListBySession ordering: %#v", bySession)
	}
	byMember, err := repo.ListByMember(ctx, memberID)
	if err != nil {
		t.Fatalf("ListByMember: %v", err)
	}
	if len(byMember) != 2 || byMember[0].ID != first.ID || byMember[1].ID != second.ID {
		t.Fatalf("unexpected ListByMember: %#v", byMember)
	}
	empty, err := repo.ListByMember(ctx, domain.MemberID(uuid.NewString()))
	if err != nil || len(empty) != 0 {
		t.Fatalf("ListByMember unknown: %v err=%v", empty, err)
	}

	if _, err := repo.GetByID(ctx, domain.BookingID(uuid.NewString())); !errors.Is(err, bookingrepoport.ErrNotFound) {
		t.Fatalf("GetByID missing err=%v, want ErrNotFound", err)
	}
}

func RunLocker(t *testing.T, newLocker LockerFactory) {
	t.Helper()
	ctx := context.Background()

	l, cleanup := newLocker(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	key := "session:" + uuid.NewString()
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// A held key blocks until the caller gives up.
	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	if _, err := l.Lock(waitCtx, key); err == nil {
		cancel()
		t.Fatalf("expected second Lock on held key to fail")
	}
	cancel()

	// Other keys are independent.
	otherUnlock, err := l.Lock(ctx, "session:"+uuid.NewString())
	if err != nil {
		t.Fatalf("Lock other key: %v", err)
	}
	otherUnlock()

	// Released keys are acquirable, and a waiter is handed the lock.
	acquired := make(chan error, 1)
	go func() {
		u, err := l.Lock(ctx, key)
		if err == nil {
			u()
		}
		acquired <- err
	}()
	time.Sleep(20 * time.Millisecond)
	unlock()
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("waiter Lock: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("waiter never acquired the released lock")
	}
}
