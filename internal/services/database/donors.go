package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"blood-alert-engine/internal/models"
)

const uniqueViolation = "23505"

const donorColumns = `id, name, email, phone, role, COALESCE(address, ''), COALESCE(blood_type, ''),
		lat, lng, last_donation, created_at, updated_at`

// DonorRepository handles donor database operations.
type DonorRepository struct {
	db *DB
}

// NewDonorRepository creates a new donor repository.
func NewDonorRepository(db *DB) *DonorRepository {
	return &DonorRepository{db: db}
}

// Create inserts a new donor and returns its ID.
func (r *DonorRepository) Create(ctx context.Context, donor *models.DonorCreate) (int64, error) {
	var id int64
	err := insertDonor(ctx, r.db.pool, donor).Scan(&id)
	if err != nil {
		return 0, translateWriteError("failed to create donor", err)
	}
	return id, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertDonor(ctx context.Context, q queryRower, donor *models.DonorCreate) pgx.Row {
	var lat, lng *float64
	if donor.Location != nil {
		lat, lng = &donor.Location.Lat, &donor.Location.Lng
	}
	now := time.Now().UTC()

	return q.QueryRow(ctx, `
		INSERT INTO donors (name, email, phone, role, address, blood_type, lat, lng, last_donation, batch_id, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $12)
		RETURNING id`,
		donor.Name,
		donor.Email,
		donor.Phone,
		string(models.RoleDonor),
		donor.Address,
		string(donor.BloodType),
		lat,
		lng,
		donor.LastDonation,
		donor.BatchID,
		donor.PasswordHash,
		now,
	)
}

// BulkInsert inserts donors one by one inside a transaction. Each row runs in
// its own savepoint so a duplicate does not abort the rest of the batch.
func (r *DonorRepository) BulkInsert(ctx context.Context, donors []*models.DonorCreate) (*models.BulkInsertResult, error) {
	result := &models.BulkInsertResult{
		Errors: []string{},
	}

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, donor := range donors {
			sp, err := tx.Begin(ctx)
			if err != nil {
				return fmt.Errorf("failed to open savepoint: %w", err)
			}

			var id int64
			if err := insertDonor(ctx, sp, donor).Scan(&id); err != nil {
				_ = sp.Rollback(ctx)
				result.FailedCount++
				result.Errors = append(result.Errors, fmt.Sprintf("donor %s: %v", donor.Email, translateWriteError("insert failed", err)))
				continue
			}
			if err := sp.Commit(ctx); err != nil {
				return fmt.Errorf("failed to release savepoint: %w", err)
			}

			result.InsertedCount++
			result.InsertedIDs = append(result.InsertedIDs, id)
		}
		return nil
	})

	if err != nil {
		return result, fmt.Errorf("bulk insert failed: %w", err)
	}

	return result, nil
}

// GetByID retrieves a donor by ID.
func (r *DonorRepository) GetByID(ctx context.Context, id int64) (*models.Donor, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+donorColumns+` FROM donors WHERE id = $1`, id)

	donor, err := scanDonor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrDonorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get donor: %w", err)
	}
	return donor, nil
}

// GetByIDs retrieves the donors with the given IDs. Unknown IDs are ignored.
func (r *DonorRepository) GetByIDs(ctx context.Context, ids []int64) ([]*models.Donor, error) {
	if len(ids) == 0 {
		return []*models.Donor{}, nil
	}
	return r.query(ctx, `SELECT `+donorColumns+` FROM donors WHERE id = ANY($1) ORDER BY id`, ids)
}

// ExistsByEmailOrPhone reports whether another account already uses the email or phone.
func (r *DonorRepository) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM donors WHERE lower(email) = lower($1) OR phone = $2)`,
		email, phone,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicates: %w", err)
	}
	return exists, nil
}

// GetPasswordHash returns the ID and password hash of the account with the
// given email. Accounts without a password have an empty hash.
func (r *DonorRepository) GetPasswordHash(ctx context.Context, email string) (int64, []byte, error) {
	var id int64
	var hash []byte
	err := r.db.pool.QueryRow(ctx,
		`SELECT id, password_hash FROM donors WHERE lower(email) = lower($1)`,
		email,
	).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, models.ErrDonorNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return id, hash, nil
}

// ListAll retrieves every registered account.
func (r *DonorRepository) ListAll(ctx context.Context) ([]*models.Donor, error) {
	return r.query(ctx, `SELECT `+donorColumns+` FROM donors ORDER BY id`)
}

// ListEligible retrieves donors with a known location and the given blood
// type. A non-nil ids slice restricts the result to those donors.
func (r *DonorRepository) ListEligible(ctx context.Context, bloodType models.BloodType, ids []int64) ([]*models.Donor, error) {
	query := `SELECT ` + donorColumns + `
		FROM donors
		WHERE role = $1 AND blood_type = $2 AND lat IS NOT NULL AND lng IS NOT NULL`
	args := []any{string(models.RoleDonor), string(bloodType)}

	if ids != nil {
		if len(ids) == 0 {
			return []*models.Donor{}, nil
		}
		query += ` AND id = ANY($3)`
		args = append(args, ids)
	}

	return r.query(ctx, query+` ORDER BY id`, args...)
}

// CountEligible counts the donors ListEligible would return without an id filter.
func (r *DonorRepository) CountEligible(ctx context.Context, bloodType models.BloodType) (int64, error) {
	var n int64
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM donors
		WHERE role = $1 AND blood_type = $2 AND lat IS NOT NULL AND lng IS NOT NULL`,
		string(models.RoleDonor), string(bloodType),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count donors: %w", err)
	}
	return n, nil
}

// Update applies a partial profile update. A non-nil location replaces the stored coordinates.
func (r *DonorRepository) Update(ctx context.Context, id int64, u *models.DonorUpdate, location *models.Coordinate) (*models.Donor, error) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Name != nil {
		set("name", strings.TrimSpace(*u.Name))
	}
	if u.Phone != nil {
		set("phone", strings.TrimSpace(*u.Phone))
	}
	if u.Address != nil {
		set("address", strings.TrimSpace(*u.Address))
	}
	if u.BloodType != nil {
		set("blood_type", string(*u.BloodType))
	}
	if u.LastDonation != nil {
		if strings.TrimSpace(*u.LastDonation) == "" {
			set("last_donation", nil)
		} else {
			date, err := models.ParseDate(*u.LastDonation)
			if err != nil {
				return nil, err
			}
			set("last_donation", date)
		}
	}
	if location != nil {
		set("lat", location.Lat)
		set("lng", location.Lng)
	}
	if len(sets) == 0 {
		return nil, models.ErrEmptyUpdate
	}
	set("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE donors SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), donorColumns)

	donor, err := scanDonor(r.db.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrDonorNotFound
	}
	if err != nil {
		return nil, translateWriteError("failed to update donor", err)
	}
	return donor, nil
}

func (r *DonorRepository) query(ctx context.Context, sql string, args ...any) ([]*models.Donor, error) {
	rows, err := r.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query donors: %w", err)
	}
	defer rows.Close()

	donors := []*models.Donor{}
	for rows.Next() {
		donor, err := scanDonor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donor: %w", err)
		}
		donors = append(donors, donor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read donors: %w", err)
	}

	return donors, nil
}

func scanDonor(row pgx.Row) (*models.Donor, error) {
	var donor models.Donor
	var role, bloodType string
	var lat, lng *float64

	err := row.Scan(
		&donor.ID,
		&donor.Name,
		&donor.Email,
		&donor.Phone,
		&role,
		&donor.Address,
		&bloodType,
		&lat,
		&lng,
		&donor.LastDonation,
		&donor.CreatedAt,
		&donor.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	donor.Role = models.Role(role)
	donor.BloodType = models.BloodType(bloodType)
	if lat != nil && lng != nil {
		donor.Location = &models.Coordinate{Lat: *lat, Lng: *lng}
	}
	return &donor, nil
}

// translateWriteError maps unique constraint violations to ErrDuplicateDonor.
func translateWriteError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", models.ErrDuplicateDonor, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
