package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/geo"
)

const routeColumns = `
	id, owner_deliverer_id,
	departure_address, arrival_address,
	departure_lat, departure_lng, arrival_lat, arrival_lng,
	window_from, window_to,
	capacity_kg, carrier_rating, active, created_at`

// RouteRepo represents the route repository.
type RouteRepo struct {
	db *pgxpool.Pool
}

// NewRouteRepo creates a new RouteRepo.
func NewRouteRepo(db *pgxpool.Pool) *RouteRepo {
	return &RouteRepo{db: db}
}

// Create inserts a new route.
func (r *RouteRepo) Create(ctx context.Context, rt *domain.Route) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO routes (`+routeColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
    `,
		rt.ID, rt.OwnerDelivererID,
		rt.DepartureAddress, rt.ArrivalAddress,
		rt.Departure.Lat, rt.Departure.Lng, rt.Arrival.Lat, rt.Arrival.Lng,
		rt.Window.From, rt.Window.To,
		rt.CapacityKg, rt.CarrierRating, rt.Active, rt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert route: %w", err)
	}
	return nil
}

// Get loads a route by id. Returns nil when it does not exist.
func (r *RouteRepo) Get(ctx context.Context, id string) (*domain.Route, error) {
	row := r.db.QueryRow(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = $1`, id)

	var rt domain.Route
	err := row.Scan(
		&rt.ID, &rt.OwnerDelivererID,
		&rt.DepartureAddress, &rt.ArrivalAddress,
		&rt.Departure.Lat, &rt.Departure.Lng, &rt.Arrival.Lat, &rt.Arrival.Lng,
		&rt.Window.From, &rt.Window.To,
		&rt.CapacityKg, &rt.CarrierRating, &rt.Active, &rt.CreatedAt,
	)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get route %q: %w", id, err)
	}
	return &rt, nil
}

// ListCandidates returns active routes whose departure falls in the given
// box and whose window overlaps the announcement's pickup window. This is
// the coarse prefilter; exact detour filtering happens in the engine.
func (r *RouteRepo) ListCandidates(ctx context.Context, b geo.Bounds, w geo.Window) ([]domain.Route, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+routeColumns+`
        FROM routes
        WHERE active
          AND departure_lat BETWEEN $1 AND $2
          AND departure_lng BETWEEN $3 AND $4
          AND window_from < $6
          AND window_to > $5
        ORDER BY window_from ASC
    `, b.MinLat, b.MaxLat, b.MinLng, b.MaxLng, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("list candidate routes: %w", err)
	}
	defer rows.Close()

	var out []domain.Route
	for rows.Next() {
		var rt domain.Route
		if err := rows.Scan(
			&rt.ID, &rt.OwnerDelivererID,
			&rt.DepartureAddress, &rt.ArrivalAddress,
			&rt.Departure.Lat, &rt.Departure.Lng, &rt.Arrival.Lat, &rt.Arrival.Lng,
			&rt.Window.From, &rt.Window.To,
			&rt.CapacityKg, &rt.CarrierRating, &rt.Active, &rt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan candidate route: %w", err)
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate routes: %w", err)
	}
	return out, nil
}
