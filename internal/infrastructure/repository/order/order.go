package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	order_domain "github.com/reworx/mailorder/internal/domain/order"
)

type orderRepo struct {
	db *sql.DB
}

var _ order_domain.OrderRepo = (*orderRepo)(nil)

func NewOrderRepo(dbConn *sql.DB) order_domain.OrderRepo {
	return &orderRepo{db: dbConn}
}

// ReplaceOrders swaps the user's stored order history for the result
// of one extraction run. The run itself is duplicate-tolerant, so
// rows are inserted as-is with no uniqueness constraint on order_id.
func (r *orderRepo) ReplaceOrders(ctx context.Context, userID string, orders []order_domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear previous orders: %w", err)
	}

	for _, o := range orders {
		products, err := json.Marshal(o.Products)
		if err != nil {
			return fmt.Errorf("failed to marshal products: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (id, user_id, order_id, merchant, amount, order_date, status, products)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), userID, o.OrderID, o.Merchant, o.Amount, o.Date, string(o.Status), products,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order %s: %w", o.OrderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit orders: %w", err)
	}

	return nil
}

func (r *orderRepo) GetOrdersByUserID(ctx context.Context, userID string) ([]order_domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, merchant, amount, order_date, status, products
		FROM orders WHERE user_id = ? ORDER BY order_date DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get orders by user id: %w", err)
	}
	defer rows.Close()

	var orders []order_domain.Order
	for rows.Next() {
		var (
			o        order_domain.Order
			status   string
			products []byte
		)
		if err := rows.Scan(&o.OrderID, &o.Merchant, &o.Amount, &o.Date, &status, &products); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Status = order_domain.Status(status)
		if len(products) > 0 {
			if err := json.Unmarshal(products, &o.Products); err != nil {
				return nil, fmt.Errorf("failed to unmarshal products: %w", err)
			}
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	return orders, nil
}
