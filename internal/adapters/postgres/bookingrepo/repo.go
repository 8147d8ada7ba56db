package bookingrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/class-booking-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/bookingrepo"
)

// Repo is a Postgres implementation of bookingrepo.Repository.
// The one-active-booking-per-pair rule is the partial unique index bookings_active_pair_unique.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, b bookingrepo.Booking) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	ids, err := parseIDs(b)
	if err != nil {
		return err
	}

	return postgres.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO bookings (
				external_id,
				member_external_id,
				session_external_id,
				status,
				version,
				created_at,
				updated_at,
				cancelled_at
			) VALUES ($1, $2, $3, $4, 1, $5, $6, $7)
		`,
			ids.booking,
			ids.member,
			ids.session,
			string(b.Status),
			b.CreatedAt.UTC(),
			b.UpdatedAt.UTC(),
			utcPtr(b.CancelledAt),
		)
		return mapUniqueErr(err)
	})
}

func (r *Repo) Save(ctx context.Context, b bookingrepo.Booking) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(b.ID))
	if err != nil {
		return bookingrepo.ErrNotFound
	}

	return postgres.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Member and session are immutable; only lifecycle fields change.
		ct, err := tx.Exec(ctx, `
			UPDATE bookings
			SET status = $3,
			    updated_at = $4,
			    cancelled_at = $5,
			    version = version + 1
			WHERE external_id = $1
			  AND version = $2
		`,
			id,
			b.Version,
			string(b.Status),
			b.UpdatedAt.UTC(),
			utcPtr(b.CancelledAt),
		)
		if err != nil {
			return mapUniqueErr(err)
		}
		if ct.RowsAffected() == 1 {
			return nil
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE external_id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return bookingrepo.ErrNotFound
		}
		return bookingrepo.ErrVersionConflict
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.BookingID) (bookingrepo.Booking, error) {
	if r.pool == nil {
		return bookingrepo.Booking{}, errors.New("nil postgres pool")
	}
	u, err := uuid.Parse(string(id))
	if err != nil {
		return bookingrepo.Booking{}, bookingrepo.ErrNotFound
	}
	return scanBooking(postgres.Conn(ctx, r.pool).QueryRow(ctx, selectBooking+` WHERE external_id = $1`, u))
}

func (r *Repo) FindActiveByMemberAndSession(ctx context.Context, memberID domain.MemberID, sessionID domain.SessionID) (bookingrepo.Booking, error) {
	if r.pool == nil {
		return bookingrepo.Booking{}, errors.New("nil postgres pool")
	}
	mu, err := uuid.Parse(string(memberID))
	if err != nil {
		return bookingrepo.Booking{}, bookingrepo.ErrNotFound
	}
	su, err := uuid.Parse(string(sessionID))
	if err != nil {
		return bookingrepo.Booking{}, bookingrepo.ErrNotFound
	}
	return scanBooking(postgres.Conn(ctx, r.pool).QueryRow(ctx, selectBooking+`
		WHERE member_external_id = $1
		  AND session_external_id = $2
		  AND status <> 'CANCELLED'
	`, mu, su))
}

func (r *Repo) ListBySession(ctx context.Context, sessionID domain.SessionID) ([]bookingrepo.Booking, error) {
	u, err := uuid.Parse(string(sessionID))
	if err != nil {
		return []bookingrepo.Booking{}, nil
	}
	return r.list(ctx, `WHERE session_external_id = $1`, u)
}

func (r *Repo) ListByMember(ctx context.Context, memberID domain.MemberID) ([]bookingrepo.Booking, error) {
	u, err := uuid.Parse(string(memberID))
	if err != nil {
		return []bookingrepo.Booking{}, nil
	}
	return r.list(ctx, `WHERE member_external_id = $1`, u)
}

func (r *Repo) list(ctx context.Context, where string, arg uuid.UUID) ([]bookingrepo.Booking, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, selectBooking+` `+where+` ORDER BY created_at ASC, external_id ASC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]bookingrepo.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Postgres orders uuids bytewise, which matches their canonical string order.
	return out, nil
}

const selectBooking = `
	SELECT
		external_id,
		member_external_id,
		session_external_id,
		status,
		version,
		created_at,
		updated_at,
		cancelled_at
	FROM bookings`

func scanBooking(row pgx.Row) (bookingrepo.Booking, error) {
	var (
		extID, memberID, sessionID uuid.UUID
		status                     string
		cancelledAt                *time.Time
		b                          bookingrepo.Booking
	)
	if err := row.Scan(
		&extID,
		&memberID,
		&sessionID,
		&status,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
		&cancelledAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return bookingrepo.Booking{}, bookingrepo.ErrNotFound
		}
		return bookingrepo.Booking{}, err
	}
	b.ID = domain.BookingID(extID.String())
	b.MemberID = domain.MemberID(memberID.String())
	b.SessionID = domain.SessionID(sessionID.String())
	b.Status = domain.BookingStatus(status)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	b.CancelledAt = utcPtr(cancelledAt)
	return b, nil
}

type bookingIDs struct {
	booking, member, session uuid.UUID
}

func parseIDs(b bookingrepo.Booking) (bookingIDs, error) {
	var (
		out bookingIDs
		err error
	)
	if out.booking, err = uuid.Parse(string(b.ID)); err != nil {
		return out, fmt.Errorf("invalid booking id: %w", err)
	}
	if out.member, err = uuid.Parse(string(b.MemberID)); err != nil {
		return out, fmt.Errorf("invalid member id: %w", err)
	}
	if out.session, err = uuid.Parse(string(b.SessionID)); err != nil {
		return out, fmt.Errorf("invalid session id: %w", err)
	}
	return out, nil
}

func mapUniqueErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case postgres.IsUniqueViolation(err, "bookings_external_id_unique"):
		return bookingrepo.ErrAlreadyExists
	case postgres.IsUniqueViolation(err, "bookings_active_pair_unique"):
		return bookingrepo.ErrActiveBookingExists
	}
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
