package memberrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/class-booking-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/memberrepo"
)

// Repo is a Postgres implementation of memberrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, m memberrepo.Member) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(m.ID))
	if err != nil {
		return fmt.Errorf("invalid member id: %w", err)
	}

	return postgres.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO members (
				external_id,
				display_name,
				email,
				tier,
				credits,
				credits_expire_at,
				version,
				created_at,
				updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8)
		`,
			id,
			m.DisplayName,
			strings.TrimSpace(m.Email),
			string(m.Tier),
			m.Credits,
			utcPtr(m.CreditsExpireAt),
			m.CreatedAt.UTC(),
			m.UpdatedAt.UTC(),
		)
		return mapUniqueErr(err)
	})
}

func (r *Repo) Save(ctx context.Context, m memberrepo.Member) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(m.ID))
	if err != nil {
		return memberrepo.ErrNotFound
	}

	return postgres.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE members
			SET display_name = $3,
			    email = $4,
			    tier = $5,
			    credits = $6,
			    credits_expire_at = $7,
			    updated_at = $8,
			    version = version + 1
			WHERE external_id = $1
			  AND version = $2
		`,
			id,
			m.Version,
			m.DisplayName,
			strings.TrimSpace(m.Email),
			string(m.Tier),
			m.Credits,
			utcPtr(m.CreditsExpireAt),
			m.UpdatedAt.UTC(),
		)
		if err != nil {
			return mapUniqueErr(err)
		}
		if ct.RowsAffected() == 1 {
			return nil
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM members WHERE external_id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return memberrepo.ErrNotFound
		}
		return memberrepo.ErrVersionConflict
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (memberrepo.Member, error) {
	if r.pool == nil {
		return memberrepo.Member{}, errors.New("nil postgres pool")
	}
	u, err := uuid.Parse(string(id))
	if err != nil {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	return scanMember(postgres.Conn(ctx, r.pool).QueryRow(ctx, selectMember+` WHERE external_id = $1`, u))
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (memberrepo.Member, error) {
	if r.pool == nil {
		return memberrepo.Member{}, errors.New("nil postgres pool")
	}
	return scanMember(postgres.Conn(ctx, r.pool).QueryRow(ctx, selectMember+` WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
}

const selectMember = `
	SELECT
		external_id,
		display_name,
		email,
		tier,
		credits,
		credits_expire_at,
		version,
		created_at,
		updated_at
	FROM members`

func scanMember(row pgx.Row) (memberrepo.Member, error) {
	var (
		extID     uuid.UUID
		m         memberrepo.Member
		tier      string
		expiresAt *time.Time
	)
	if err := row.Scan(
		&extID,
		&m.DisplayName,
		&m.Email,
		&tier,
		&m.Credits,
		&expiresAt,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return memberrepo.Member{}, memberrepo.ErrNotFound
		}
		return memberrepo.Member{}, err
	}
	m.ID = domain.MemberID(extID.String())
	m.Tier = domain.Tier(tier)
	m.CreditsExpireAt = utcPtr(expiresAt)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

func mapUniqueErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case postgres.IsUniqueViolation(err, "members_external_id_unique"):
		return memberrepo.ErrAlreadyExists
	case postgres.IsUniqueViolation(err, "members_email_lower_unique"):
		return memberrepo.ErrEmailAlreadyInUse
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
