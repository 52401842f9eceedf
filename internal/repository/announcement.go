package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdship-engine/internal/domain"
)

const announcementColumns = `
	id, type, status, owner_client_id,
	pickup_address, delivery_address,
	pickup_lat, pickup_lng, delivery_lat, delivery_lng,
	window_from, window_to,
	weight_kg, fragile, insured,
	suggested_price, final_price,
	created_at, expires_at`

// AnnouncementRepo represents the announcement repository.
type AnnouncementRepo struct {
	db *pgxpool.Pool
}

// NewAnnouncementRepo creates a new AnnouncementRepo.
func NewAnnouncementRepo(db *pgxpool.Pool) *AnnouncementRepo {
	return &AnnouncementRepo{db: db}
}

func scanAnnouncement(row pgx.Row) (*domain.Announcement, error) {
	var a domain.Announcement
	err := row.Scan(
		&a.ID, &a.Type, &a.Status, &a.OwnerClientID,
		&a.PickupAddress, &a.DeliveryAddress,
		&a.Pickup.Lat, &a.Pickup.Lng, &a.Delivery.Lat, &a.Delivery.Lng,
		&a.PickupWindow.From, &a.PickupWindow.To,
		&a.WeightKg, &a.Fragile, &a.Insured,
		&a.SuggestedPrice, &a.FinalPrice,
		&a.CreatedAt, &a.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepo) Create(ctx context.Context, a *domain.Announcement) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO announcements (`+announcementColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
    `,
		a.ID, string(a.Type), string(a.Status), a.OwnerClientID,
		a.PickupAddress, a.DeliveryAddress,
		a.Pickup.Lat, a.Pickup.Lng, a.Delivery.Lat, a.Delivery.Lng,
		a.PickupWindow.From, a.PickupWindow.To,
		a.WeightKg, a.Fragile, a.Insured,
		a.SuggestedPrice, a.FinalPrice,
		a.CreatedAt, a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert announcement: %w", err)
	}
	return nil
}

// Get loads an announcement by id. Returns nil when it does not exist.
func (r *AnnouncementRepo) Get(ctx context.Context, id string) (*domain.Announcement, error) {
	row := r.db.QueryRow(ctx, `SELECT `+announcementColumns+` FROM announcements WHERE id = $1`, id)
	a, err := scanAnnouncement(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get announcement %q: %w", id, err)
	}
	return a, nil
}

// UpdateStatusCAS conditionally moves an announcement from one status to
// another. Reports false when the row was not in the from status.
func (r *AnnouncementRepo) UpdateStatusCAS(ctx context.Context, id string, from, to domain.AnnouncementStatus) (bool, error) {
	ct, err := r.db.Exec(ctx, `
        UPDATE announcements
        SET status = $3, updated_at = now()
        WHERE id = $1 AND status = $2
    `, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update announcement status %q: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

// SetFinalPrice sets the final price once. Rows already carrying a final
// price are left untouched.
func (r *AnnouncementRepo) SetFinalPrice(ctx context.Context, id string, price float64) error {
	_, err := r.db.Exec(ctx, `
        UPDATE announcements
        SET final_price = $2, updated_at = now()
        WHERE id = $1 AND final_price = 0
    `, id, price)
	if err != nil {
		return fmt.Errorf("set final price %q: %w", id, err)
	}
	return nil
}

// ExpireStale moves ACTIVE/MATCHED announcements past their expiry to
// EXPIRED and returns the number of rows touched. Safe to run from
// concurrent sweeper instances.
func (r *AnnouncementRepo) ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error) {
	ct, err := r.db.Exec(ctx, `
        UPDATE announcements
        SET status = $1, updated_at = now()
        WHERE id IN (
            SELECT id FROM announcements
            WHERE status = ANY($2)
              AND expires_at < $3
            LIMIT $4
        )
    `, string(domain.StatusExpired),
		[]string{string(domain.StatusActive), string(domain.StatusMatched)},
		now, limit)
	if err != nil {
		return 0, fmt.Errorf("expire stale announcements: %w", err)
	}
	return ct.RowsAffected(), nil
}
