package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

const bookingSelect = `
	SELECT b.id, b.reference, b.tenant_id, b.room_id, b.boarding_house_id,
		   b.check_in_date, b.check_out_date, b.status,
		   b.owner_message, b.tenant_message, b.note, b.is_deleted,
		   b.date_booked, b.created_at, b.updated_at,
		   bh.owner_id, r.price AS room_price
	FROM bookings b
	JOIN rooms r ON r.id = b.room_id
	JOIN boarding_houses bh ON bh.id = b.boarding_house_id`

// BookingRepository handles database operations for bookings table
type BookingRepository struct {
	db sqlx.ExtContext
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db sqlx.ExtContext) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a booking and fills in the generated columns
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			reference, tenant_id, room_id, boarding_house_id,
			check_in_date, check_out_date, status, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, date_booked, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		booking.Reference, booking.TenantID, booking.RoomID, booking.BoardingHouseID,
		booking.CheckInDate, booking.CheckOutDate, booking.Status, booking.Note,
	).Scan(&booking.ID, &booking.DateBooked, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a non-deleted booking with its owner and room price.
// Returns nil, nil when not found.
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	query := bookingSelect + ` WHERE b.id = $1 AND b.is_deleted = FALSE`

	err := sqlx.GetContext(ctx, r.db, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// List returns one page of non-deleted bookings and the total match count
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	conditions := []string{"b.is_deleted = FALSE"}
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.TenantID != nil {
		add("b.tenant_id = $%d", *filter.TenantID)
	}
	if filter.OwnerID != nil {
		add("bh.owner_id = $%d", *filter.OwnerID)
	}
	if filter.BookID != nil {
		add("b.id = $%d", *filter.BookID)
	}
	if filter.RoomID != nil {
		add("b.room_id = $%d", *filter.RoomID)
	}
	if filter.BoardingHouseID != nil {
		add("b.boarding_house_id = $%d", *filter.BoardingHouseID)
	}
	if filter.Status != nil {
		add("b.status = $%d", string(*filter.Status))
	}
	if filter.FromCheckIn != nil {
		add("b.check_in_date >= $%d", *filter.FromCheckIn)
	}
	if filter.ToCheckIn != nil {
		add("b.check_in_date <= $%d", *filter.ToCheckIn)
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := `
	SELECT COUNT(*)
	FROM bookings b
	JOIN rooms r ON r.id = b.room_id
	JOIN boarding_houses bh ON bh.id = b.boarding_house_id` + where
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	pageArgs := append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	query := bookingSelect + where +
		fmt.Sprintf(" ORDER BY b.check_in_date ASC, b.id ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	bookings := []*models.Booking{}
	if err := sqlx.SelectContext(ctx, r.db, &bookings, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, total, nil
}

// TransitionStatus moves a booking to `to` only if its current status is in `from`.
// Messages are written only when non-nil.
func (r *BookingRepository) TransitionStatus(ctx context.Context, id int64, from []models.BookingStatus, to models.BookingStatus, msgs models.BookingMessages) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $1,
			owner_message = COALESCE($2, owner_message),
			tenant_message = COALESCE($3, tenant_message),
			updated_at = NOW()
		WHERE id = $4 AND is_deleted = FALSE AND status = ANY($5)
	`

	res, err := r.db.ExecContext(ctx, query, to, msgs.OwnerMessage, msgs.TenantMessage, id, bookingStatusArray(from))
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	return affected(res)
}

// UpdateDates changes the stay dates while the booking is still a pending request
func (r *BookingRepository) UpdateDates(ctx context.Context, id int64, checkIn, checkOut time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET check_in_date = $1, check_out_date = $2, updated_at = NOW()
		WHERE id = $3 AND is_deleted = FALSE AND status = $4
	`

	res, err := r.db.ExecContext(ctx, query, checkIn, checkOut, id, models.BookingStatusPendingRequest)
	if err != nil {
		return false, fmt.Errorf("failed to update booking dates: %w", err)
	}
	return affected(res)
}

// SoftDelete flags a booking as deleted; false means it was missing or already deleted
func (r *BookingRepository) SoftDelete(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE bookings SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND is_deleted = FALSE`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete booking: %w", err)
	}
	return affected(res)
}

// RoomRepository reads rooms
type RoomRepository struct {
	db sqlx.ExtContext
}

// NewRoomRepository creates a new RoomRepository
func NewRoomRepository(db sqlx.ExtContext) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetByID retrieves a room with its boarding house owner. Returns nil, nil when not found.
func (r *RoomRepository) GetByID(ctx context.Context, id int64) (*models.Room, error) {
	var room models.Room
	query := `
		SELECT r.id, r.boarding_house_id, bh.owner_id, r.room_number, r.price
		FROM rooms r
		JOIN boarding_houses bh ON bh.id = r.boarding_house_id
		WHERE r.id = $1 AND r.is_deleted = FALSE AND bh.is_deleted = FALSE
	`

	err := sqlx.GetContext(ctx, r.db, &room, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}
