package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/outbox"
	"crowdship-engine/internal/ports/matchtx"
)

const matchColumns = `
	id, announcement_id, route_id, deliverer_id,
	score, reasons, distance_km, detour_percent, price_estimate,
	pickup_lat, pickup_lng, delivery_lat, delivery_lng,
	status, notified, created_at`

// MatchRepo represents the match repository.
type MatchRepo struct {
	db *pgxpool.Pool
}

// NewMatchRepo creates a new MatchRepo.
func NewMatchRepo(db *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{db: db}
}

// WithTx opens a transaction and executes fn within it.
func (r *MatchRepo) WithTx(ctx context.Context, fn func(tx matchtx.Repository) error) (err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	// откатываем в случае паники
	defer func() {
		if p := recover(); p != nil {
			err = tx.Rollback(ctx)
			if err != nil {
				panic(err)
			}
			panic(p)
		}
	}()

	wrapped := &MatchTxRepo{tx: tx}

	if err := fn(wrapped); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback tx: %w (original error: %s)", rbErr, err.Error())
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanMatch(row pgx.Row) (*domain.Match, error) {
	var (
		m       domain.Match
		reasons []string
	)
	err := row.Scan(
		&m.ID, &m.AnnouncementID, &m.RouteID, &m.DelivererID,
		&m.Score, &reasons, &m.DistanceKm, &m.DetourPercent, &m.PriceEstimate,
		&m.PickupPoint.Lat, &m.PickupPoint.Lng, &m.DeliveryPoint.Lat, &m.DeliveryPoint.Lng,
		&m.Status, &m.Notified, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, v := range reasons {
		m.Reasons = append(m.Reasons, domain.MatchReason(v))
	}
	return &m, nil
}

func reasonStrings(reasons []domain.MatchReason) []string {
	out := make([]string, 0, len(reasons))
	for _, v := range reasons {
		out = append(out, string(v))
	}
	return out
}

// GetMatch loads a match by id. Returns nil when it does not exist.
func (r *MatchRepo) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	row := r.db.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	m, err := scanMatch(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get match %q: %w", id, err)
	}
	return m, nil
}

// GetAcceptedByAnnouncement returns the accepted match of an announcement,
// or nil when none exists. The partial unique index guarantees at most one.
func (r *MatchRepo) GetAcceptedByAnnouncement(ctx context.Context, announcementID string) (*domain.Match, error) {
	row := r.db.QueryRow(ctx, `
        SELECT `+matchColumns+`
        FROM matches
        WHERE announcement_id = $1 AND status = $2
    `, announcementID, string(domain.MatchAccepted))
	m, err := scanMatch(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get accepted match for %q: %w", announcementID, err)
	}
	return m, nil
}

// ListPendingByAnnouncement returns the live candidates of an announcement,
// best first.
func (r *MatchRepo) ListPendingByAnnouncement(ctx context.Context, announcementID string) ([]domain.Match, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+matchColumns+`
        FROM matches
        WHERE announcement_id = $1 AND status = $2
        ORDER BY score DESC, created_at ASC
    `, announcementID, string(domain.MatchPending))
	if err != nil {
		return nil, fmt.Errorf("list pending matches for %q: %w", announcementID, err)
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending match: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending matches: %w", err)
	}
	return out, nil
}

// ReplacePending deletes the previous candidate set of an announcement and
// inserts the freshly generated one, atomically.
func (r *MatchRepo) ReplacePending(ctx context.Context, announcementID string, matches []domain.Match) error {
	return r.WithTx(ctx, func(tx matchtx.Repository) error {
		txr := tx.(*MatchTxRepo)
		if _, err := txr.tx.Exec(ctx, `
            DELETE FROM matches WHERE announcement_id = $1 AND status = $2
        `, announcementID, string(domain.MatchPending)); err != nil {
			return fmt.Errorf("delete pending matches: %w", err)
		}
		for i := range matches {
			m := &matches[i]
			if _, err := txr.tx.Exec(ctx, `
                INSERT INTO matches (`+matchColumns+`)
                VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
            `,
				m.ID, m.AnnouncementID, m.RouteID, m.DelivererID,
				m.Score, reasonStrings(m.Reasons), m.DistanceKm, m.DetourPercent, m.PriceEstimate,
				m.PickupPoint.Lat, m.PickupPoint.Lng, m.DeliveryPoint.Lat, m.DeliveryPoint.Lng,
				string(m.Status), m.Notified, m.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert match %q: %w", m.ID, err)
			}
		}
		return nil
	})
}

// UpdateStatus conditionally moves a match from one status to another
// outside a transaction (used by reject).
func (r *MatchRepo) UpdateStatus(ctx context.Context, matchID string, from, to domain.MatchStatus) (bool, error) {
	ct, err := r.db.Exec(ctx, `
        UPDATE matches SET status = $3 WHERE id = $1 AND status = $2
    `, matchID, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update match status %q: %w", matchID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkNotified flags the given matches as notified, best effort.
func (r *MatchRepo) MarkNotified(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE matches SET notified = true WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark matches notified: %w", err)
	}
	return nil
}

// ExpireStale expires live candidates whose announcement has left the
// matchable states, and returns the number of rows touched.
func (r *MatchRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `
        UPDATE matches m
        SET status = $1
        WHERE m.status = $2
          AND m.announcement_id IN (
              SELECT a.id FROM announcements a
              WHERE a.status <> ALL($3) OR a.expires_at < $4
          )
    `, string(domain.MatchExpired), string(domain.MatchPending),
		[]string{string(domain.StatusActive), string(domain.StatusMatched)}, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale matches: %w", err)
	}
	return ct.RowsAffected(), nil
}

// MatchTxRepo represents the transactional match repository.
type MatchTxRepo struct {
	tx pgx.Tx
}

// GetMatchForUpdate loads and locks a match row.
func (r *MatchTxRepo) GetMatchForUpdate(ctx context.Context, matchID string) (*domain.Match, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, matchID)
	m, err := scanMatch(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get match for update %q: %w", matchID, err)
	}
	return m, nil
}

// LockAnnouncement locks the announcement row for the duration of the
// transaction.
func (r *MatchTxRepo) LockAnnouncement(ctx context.Context, announcementID string) (*domain.Announcement, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+announcementColumns+` FROM announcements WHERE id = $1 FOR UPDATE`, announcementID)
	a, err := scanAnnouncement(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock announcement %q: %w", announcementID, err)
	}
	return a, nil
}

// UpdateMatchStatus conditionally moves a match from one status to another.
func (r *MatchTxRepo) UpdateMatchStatus(ctx context.Context, matchID string, from, to domain.MatchStatus) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
        UPDATE matches SET status = $3 WHERE id = $1 AND status = $2
    `, matchID, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update match status %q: %w", matchID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// InvalidateSiblings invalidates every other live candidate of the
// announcement.
func (r *MatchTxRepo) InvalidateSiblings(ctx context.Context, announcementID, keepMatchID string) (int64, error) {
	ct, err := r.tx.Exec(ctx, `
        UPDATE matches SET status = $1
        WHERE announcement_id = $2 AND id <> $3 AND status = $4
    `, string(domain.MatchInvalidated), announcementID, keepMatchID, string(domain.MatchPending))
	if err != nil {
		return 0, fmt.Errorf("invalidate siblings of %q: %w", announcementID, err)
	}
	return ct.RowsAffected(), nil
}

// UpdateAnnouncementStatus conditionally moves the announcement to target
// when its current status is one of from.
func (r *MatchTxRepo) UpdateAnnouncementStatus(ctx context.Context, announcementID string, from []domain.AnnouncementStatus, to domain.AnnouncementStatus) (bool, error) {
	fromStr := make([]string, 0, len(from))
	for _, v := range from {
		fromStr = append(fromStr, string(v))
	}
	ct, err := r.tx.Exec(ctx, `
        UPDATE announcements
        SET status = $3, updated_at = now()
        WHERE id = $1 AND status = ANY($2)
    `, announcementID, fromStr, string(to))
	if err != nil {
		return false, fmt.Errorf("update announcement status %q: %w", announcementID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// EnqueueOutbox stages a post-commit effect inside the transaction.
func (r *MatchTxRepo) EnqueueOutbox(ctx context.Context, ev outbox.Event) error {
	return insertOutbox(ctx, r.tx, ev)
}
