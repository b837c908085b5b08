package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const orderColumns = `
	id, external_reference, customer_name, customer_first_name, customer_phone,
	customer_address, deadline, payment_state, total_amount, status, note,
	created_at, updated_at
`

const itemColumns = `
	id, order_id, family, color, print_size, logo_position, reference, size,
	collection, front_image, back_image, print_ref, print_size2, print_quantity,
	unit_price
`

// GetOrderByReference looks up an order (with items) by its idempotency key
func (db *Database) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_reference = $1`, reference)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := db.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder looks up an order (with items) by its server-assigned id
func (db *Database) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := db.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// CreateOrder persists a canonical order and all its line items in a single
// transaction. Partial creation is never observable. A concurrent ingestion
// of the same reference surfaces as models.ErrDuplicateReference via the
// unique index, so the caller can retry the update path deterministically.
func (db *Database) CreateOrder(ctx context.Context, canonical *models.CanonicalOrder) (*models.Order, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order := &models.Order{
		ExternalReference: canonical.ExternalReference,
		CustomerName:      canonical.CustomerName,
		CustomerFirstName: canonical.CustomerFirstName,
		CustomerPhone:     canonical.CustomerPhone,
		CustomerAddress:   canonical.CustomerAddress,
		Deadline:          canonical.Deadline,
		PaymentState:      canonical.PaymentState,
		TotalAmount:       canonical.TotalAmount,
		Status:            models.OrderStatusNew,
		Note:              canonical.Note,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (
			external_reference, customer_name, customer_first_name, customer_phone,
			customer_address, deadline, payment_state, total_amount, status, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`,
		order.ExternalReference, order.CustomerName, order.CustomerFirstName,
		order.CustomerPhone, order.CustomerAddress, order.Deadline,
		string(order.PaymentState), order.TotalAmount, string(order.Status), order.Note,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrDuplicateReference
		}
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	for i, item := range canonical.Items {
		persisted := item
		persisted.OrderID = order.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items (
				order_id, position, family, color, print_size, logo_position,
				reference, size, collection, front_image, back_image,
				print_ref, print_size2, print_quantity, unit_price
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id
		`,
			order.ID, i, item.Family, item.Color, item.PrintSize, item.LogoPosition,
			item.Reference, item.Size, item.Collection, item.FrontImage, item.BackImage,
			item.PrintRef, item.PrintSize2, item.PrintQuantity, item.UnitPrice,
		).Scan(&persisted.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert order item %d: %w", i, err)
		}
		order.Items = append(order.Items, persisted)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order creation: %w", err)
	}

	return order, nil
}

// ApplyIngestUpdate applies the restricted re-ingestion mutation: payment
// state, note and updated_at only. Customer fields, totals and items stay
// untouched so operator edits survive webhook re-deliveries.
func (db *Database) ApplyIngestUpdate(ctx context.Context, reference string, update models.IngestUpdate) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx, `
		UPDATE orders
		SET payment_state = $1, note = $2, updated_at = CURRENT_TIMESTAMP
		WHERE external_reference = $3
		RETURNING `+orderColumns,
		string(update.PaymentState), update.Note, reference,
	)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := db.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns the full current order list with items, newest first.
// This is the reconciliation source of truth for polling clients.
func (db *Database) ListOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	index := make(map[string]int)
	var ids []string
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		index[order.ID] = len(orders)
		ids = append(ids, order.ID)
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	if len(orders) == 0 {
		return []models.Order{}, nil
	}

	itemRows, err := db.Pool.Query(ctx, `
		SELECT `+itemColumns+` FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		item, err := scanItem(itemRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, *item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return orders, nil
}

// UpdateOrderOperator applies a dashboard edit; only non-nil fields change
func (db *Database) UpdateOrderOperator(ctx context.Context, id string, update models.OperatorUpdate) (*models.Order, error) {
	setClauses := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []interface{}{}
	addSet := func(column string, value interface{}) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		addSet("status", string(*update.Status))
	}
	if update.PaymentState != nil {
		addSet("payment_state", string(*update.PaymentState))
	}
	if update.CustomerName != nil {
		addSet("customer_name", *update.CustomerName)
	}
	if update.CustomerFirstName != nil {
		addSet("customer_first_name", *update.CustomerFirstName)
	}
	if update.CustomerPhone != nil {
		addSet("customer_phone", *update.CustomerPhone)
	}
	if update.CustomerAddress != nil {
		addSet("customer_address", *update.CustomerAddress)
	}
	if update.Deadline != nil {
		addSet("deadline", *update.Deadline)
	}
	if update.TotalAmount != nil {
		addSet("total_amount", *update.TotalAmount)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE orders SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), len(args), orderColumns,
	)

	row := db.Pool.QueryRow(ctx, query, args...)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := db.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrderNote updates the freeform note of an order
func (db *Database) UpdateOrderNote(ctx context.Context, id string, note string) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx, `
		UPDATE orders
		SET note = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
		RETURNING `+orderColumns,
		note, id,
	)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := db.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// DeleteOrder removes an order and its items (cascade). Operator-initiated only.
func (db *Database) DeleteOrder(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}

// loadItems fills in an order's line items in insertion order
func (db *Database) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+itemColumns+` FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to query items for order %s: %w", order.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return err
		}
		order.Items = append(order.Items, *item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating items for order %s: %w", order.ID, err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	err := row.Scan(
		&order.ID,
		&order.ExternalReference,
		&order.CustomerName,
		&order.CustomerFirstName,
		&order.CustomerPhone,
		&order.CustomerAddress,
		&order.Deadline,
		&order.PaymentState,
		&order.TotalAmount,
		&order.Status,
		&order.Note,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &order, nil
}

func scanItem(row pgx.Row) (*models.LineItem, error) {
	var item models.LineItem
	err := row.Scan(
		&item.ID,
		&item.OrderID,
		&item.Family,
		&item.Color,
		&item.PrintSize,
		&item.LogoPosition,
		&item.Reference,
		&item.Size,
		&item.Collection,
		&item.FrontImage,
		&item.BackImage,
		&item.PrintRef,
		&item.PrintSize2,
		&item.PrintQuantity,
		&item.UnitPrice,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan order item: %w", err)
	}
	return &item, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
