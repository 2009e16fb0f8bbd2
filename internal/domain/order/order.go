package order

import (
	"context"
	"time"
)

type Status string

const (
	StatusDelivered  Status = "delivered"
	StatusProcessing Status = "processing"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

// Product is one line item extracted from an order email.
type Product struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is a structured purchase record derived from one email. An
// Order always carries a recognized merchant and an order id; amount,
// date, status, and products are best-effort.
type Order struct {
	OrderID  string    `json:"orderId"`
	Merchant string    `json:"merchant"`
	Amount   float64   `json:"amount"`
	Date     time.Time `json:"date"`
	Status   Status    `json:"status"`
	Products []Product `json:"products"`
}

// Summary aggregates a set of orders by status bucket.
type Summary struct {
	Total               int `json:"total"`
	Delivered           int `json:"delivered"`
	Processing          int `json:"processing"`
	CancelledOrReturned int `json:"cancelledOrReturned"`
}

// Summarize recomputes a Summary from scratch. Cancelled and returned
// orders share one bucket; any status outside the known set counts as
// processing, so the buckets always add up to Total.
func Summarize(orders []Order) Summary {
	var s Summary
	for _, o := range orders {
		s.Total++
		switch o.Status {
		case StatusDelivered:
			s.Delivered++
		case StatusCancelled, StatusReturned:
			s.CancelledOrReturned++
		default:
			s.Processing++
		}
	}
	return s
}

type OrderRepo interface {
	ReplaceOrders(ctx context.Context, userID string, orders []Order) error
	GetOrdersByUserID(ctx context.Context, userID string) ([]Order, error)
}
