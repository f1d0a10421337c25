package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

const orderColumns = `order_id, user_id, amount, network, wallet_address,
	locked_price, total, status, locked_at, tx_hash, receipt_url,
	hash_viewed_at, hash_view_count, created_at, updated_at`

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO orders (
			order_id, user_id, amount, network, wallet_address,
			locked_price, total, status, locked_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		order.OrderID,
		order.UserID,
		order.Amount,
		order.Network,
		order.WalletAddress,
		order.LockedPrice,
		order.Total,
		order.Status,
		order.LockedAt,
	)
	return err
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID)
	return scanOrder(row)
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// UpdateStatusIf applies an optimistic status transition. It reports false
// when the order was no longer in any of the expected pre-states, which is
// how concurrent writers lose gracefully.
func (s *Store) UpdateStatusIf(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status=$2, updated_at=now()
		WHERE order_id=$1 AND status = ANY($3)
	`, orderID, to, statusStrings(from))
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// CompleteWithHash moves a processing order to completed and records the
// transaction hash in the same guarded update.
func (s *Store) CompleteWithHash(ctx context.Context, orderID, hash string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status=$2, tx_hash=$3, updated_at=now()
		WHERE order_id=$1 AND status=$4
	`, orderID, models.OrderCompleted, hash, models.OrderProcessing)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// MarkHashViewed bumps the view counter and reports whether this was the
// first view.
func (s *Store) MarkHashViewed(ctx context.Context, orderID string, viewedAt time.Time) (bool, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE orders
		SET hash_view_count = hash_view_count + 1,
			hash_viewed_at = COALESCE(hash_viewed_at, $2),
			updated_at = now()
		WHERE order_id=$1 AND tx_hash IS NOT NULL
		RETURNING hash_view_count
	`, orderID, viewedAt)

	var count int
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return count == 1, nil
}

// ExpireDue flips every pending order whose payment window has elapsed and
// returns the ids that actually transitioned. The status guard means an
// order that got its first receipt in the same instant stays paid.
func (s *Store) ExpireDue(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `
		UPDATE orders
		SET status=$1, updated_at=now()
		WHERE status=$2 AND locked_at <= $3
		RETURNING order_id
	`, models.OrderExpired, models.OrderPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CountReceipts(ctx context.Context, orderID string) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM order_receipts WHERE order_id=$1`, orderID).Scan(&n)
	return n, err
}

func (s *Store) InsertReceipt(ctx context.Context, receipt *models.OrderReceipt) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO order_receipts (receipt_id, order_id, file_url, file_name, uploaded_at, uploaded_by)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		receipt.ReceiptID,
		receipt.OrderID,
		receipt.FileURL,
		receipt.FileName,
		receipt.UploadedAt,
		receipt.UploadedBy,
	)
	return err
}

func (s *Store) ListReceipts(ctx context.Context, orderID string) ([]*models.OrderReceipt, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT receipt_id, order_id, file_url, file_name, uploaded_at, uploaded_by
		FROM order_receipts
		WHERE order_id=$1
		ORDER BY uploaded_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []*models.OrderReceipt
	for rows.Next() {
		var r models.OrderReceipt
		if err := rows.Scan(&r.ReceiptID, &r.OrderID, &r.FileURL, &r.FileName, &r.UploadedAt, &r.UploadedBy); err != nil {
			return nil, err
		}
		receipts = append(receipts, &r)
	}
	return receipts, rows.Err()
}

func (s *Store) AppendTimeline(ctx context.Context, event *models.TimelineEvent) error {
	var metadata []byte
	if event.Metadata != nil {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
		metadata = b
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO order_timeline (event_id, order_id, event_type, message, actor_type, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		event.EventID,
		event.OrderID,
		event.EventType,
		event.Message,
		event.ActorType,
		metadata,
		event.CreatedAt,
	)
	return err
}

func (s *Store) ListTimeline(ctx context.Context, orderID string) ([]*models.TimelineEvent, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT event_id, order_id, event_type, message, actor_type, metadata, created_at
		FROM order_timeline
		WHERE order_id=$1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.TimelineEvent
	for rows.Next() {
		var ev models.TimelineEvent
		var metadata []byte
		if err := rows.Scan(&ev.EventID, &ev.OrderID, &ev.EventType, &ev.Message, &ev.ActorType, &metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// GetProfileEmail is the primary contact lookup.
func (s *Store) GetProfileEmail(ctx context.Context, userID string) (string, error) {
	var email sql.NullString
	err := s.Pool.QueryRow(ctx, `SELECT email FROM profiles WHERE user_id=$1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !email.Valid || email.String == "" {
		return "", ErrNotFound
	}
	return email.String, nil
}

// GetAuthEmail is the secondary contact lookup against the identity mirror.
func (s *Store) GetAuthEmail(ctx context.Context, userID string) (string, error) {
	var email sql.NullString
	err := s.Pool.QueryRow(ctx, `SELECT email FROM auth_identities WHERE user_id=$1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !email.Valid || email.String == "" {
		return "", ErrNotFound
	}
	return email.String, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var txHash, receiptURL sql.NullString
	var hashViewedAt sql.NullTime

	err := row.Scan(
		&order.OrderID,
		&order.UserID,
		&order.Amount,
		&order.Network,
		&order.WalletAddress,
		&order.LockedPrice,
		&order.Total,
		&order.Status,
		&order.LockedAt,
		&txHash,
		&receiptURL,
		&hashViewedAt,
		&order.HashViewCount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if txHash.Valid {
		order.TxHash = &txHash.String
	}
	if receiptURL.Valid {
		order.ReceiptURL = &receiptURL.String
	}
	if hashViewedAt.Valid {
		order.HashViewedAt = &hashViewedAt.Time
	}
	return &order, nil
}

func statusStrings(statuses []models.OrderStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
