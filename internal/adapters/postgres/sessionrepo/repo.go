package sessionrepo

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
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/sessionrepo"
)

const (
	listConfirmed = "CONFIRMED"
	listWaitlist  = "WAITLIST"
)

// Repo is a Postgres implementation of sessionrepo.Repository.
// Rosters live in session_roster, rewritten on every Save.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, s sessionrepo.Session) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(s.ID))
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}

	return postgres.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var internalID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO sessions (
				external_id,
				name,
				capacity,
				session_date,
				weekday,
				start_minute,
				end_minute,
				version,
				created_at,
				updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9)
			RETURNING id
		`,
			id,
			s.Name,
			s.Capacity,
			dateOnly(s.Date),
			int(s.Day),
			int(s.StartTime),
			int(s.EndTime),
			s.CreatedAt.UTC(),
			s.UpdatedAt.UTC(),
		).Scan(&internalID)
		if err != nil {
			if postgres.IsUniqueViolation(err, "sessions_external_id_unique") {
				return sessionrepo.ErrAlreadyExists
			}
			return err
		}
		return writeRoster(ctx, tx, internalID, s.Confirmed, s.Waitlist)
	})
}

func (r *Repo) Save(ctx context.Context, s sessionrepo.Session) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(s.ID))
	if err != nil {
		return sessionrepo.ErrNotFound
	}

	return postgres.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var internalID int64
		err := tx.QueryRow(ctx, `
			UPDATE sessions
			SET name = $3,
			    capacity = $4,
			    session_date = $5,
			    weekday = $6,
			    start_minute = $7,
			    end_minute = $8,
			    updated_at = $9,
			    version = version + 1
			WHERE external_id = $1
			  AND version = $2
			RETURNING id
		`,
			id,
			s.Version,
			s.Name,
			s.Capacity,
			dateOnly(s.Date),
			int(s.Day),
			int(s.StartTime),
			int(s.EndTime),
			s.UpdatedAt.UTC(),
		).Scan(&internalID)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE external_id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return sessionrepo.ErrNotFound
			}
			return sessionrepo.ErrVersionConflict
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM session_roster WHERE session_id = $1`, internalID); err != nil {
			return err
		}
		return writeRoster(ctx, tx, internalID, s.Confirmed, s.Waitlist)
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.SessionID) (sessionrepo.Session, error) {
	if r.pool == nil {
		return sessionrepo.Session{}, errors.New("nil postgres pool")
	}
	u, err := uuid.Parse(string(id))
	if err != nil {
		return sessionrepo.Session{}, sessionrepo.ErrNotFound
	}
	q := postgres.Conn(ctx, r.pool)

	var (
		internalID       int64
		extID            uuid.UUID
		s                sessionrepo.Session
		weekday          int
		startMin, endMin int
	)
	err = q.QueryRow(ctx, `
		SELECT
			id,
			external_id,
			name,
			capacity,
			session_date,
			weekday,
			start_minute,
			end_minute,
			version,
			created_at,
			updated_at
		FROM sessions
		WHERE external_id = $1
	`, u).Scan(
		&internalID,
		&extID,
		&s.Name,
		&s.Capacity,
		&s.Date,
		&weekday,
		&startMin,
		&endMin,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sessionrepo.Session{}, sessionrepo.ErrNotFound
		}
		return sessionrepo.Session{}, err
	}
	s.ID = domain.SessionID(extID.String())
	s.Date = dateOnly(s.Date)
	s.Day = time.Weekday(weekday)
	s.StartTime = domain.TimeOfDay(startMin)
	s.EndTime = domain.TimeOfDay(endMin)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()

	s.Confirmed, s.Waitlist, err = loadRoster(ctx, q, internalID)
	if err != nil {
		return sessionrepo.Session{}, err
	}
	return s, nil
}

func loadRoster(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, sessionID int64) (confirmed, waitlist []domain.MemberID, err error) {
	rows, err := q.Query(ctx, `
		SELECT member_external_id, list
		FROM session_roster
		WHERE session_id = $1
		ORDER BY list ASC, position ASC
	`, sessionID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	confirmed = make([]domain.MemberID, 0)
	waitlist = make([]domain.MemberID, 0)
	for rows.Next() {
		var (
			mid  uuid.UUID
			list string
		)
		if err := rows.Scan(&mid, &list); err != nil {
			return nil, nil, err
		}
		switch list {
		case listConfirmed:
			confirmed = append(confirmed, domain.MemberID(mid.String()))
		case listWaitlist:
			waitlist = append(waitlist, domain.MemberID(mid.String()))
		}
	}
	return confirmed, waitlist, rows.Err()
}

func writeRoster(ctx context.Context, tx pgx.Tx, sessionID int64, confirmed, waitlist []domain.MemberID) error {
	batch := &pgx.Batch{}
	queue := func(list string, ids []domain.MemberID) error {
		for pos, id := range ids {
			u, err := uuid.Parse(string(id))
			if err != nil {
				return fmt.Errorf("invalid member id %q in %s: %w", id, list, err)
			}
			batch.Queue(`
				INSERT INTO session_roster (session_id, member_external_id, list, position)
				VALUES ($1, $2, $3, $4)
			`, sessionID, u, list, pos)
		}
		return nil
	}
	if err := queue(listConfirmed, confirmed); err != nil {
		return err
	}
	if err := queue(listWaitlist, waitlist); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}
	return tx.SendBatch(ctx, batch).Close()
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
