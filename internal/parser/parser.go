// Package parser turns a raw order-notification email into a
// structured purchase record. Each field is extracted by its own
// matcher; merchant and order id are mandatory, everything else
// degrades to a default instead of failing the parse.
package parser

import (
	"encoding/base64"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/reworx/mailorder/internal/domain/gmail"
	"github.com/reworx/mailorder/internal/domain/order"
)

// knownMerchants maps a From-header substring to the canonical
// merchant name. Ordered, first match wins.
var knownMerchants = []struct {
	match string
	name  string
}{
	{"amazon", "Amazon"},
	{"flipkart", "Flipkart"},
	{"myntra", "Myntra"},
	{"meesho", "Meesho"},
}

var (
	orderIDPattern   = regexp.MustCompile(`(?i)order(?:\s+id|\s+no\.?|\s+number)?\s*[#:]?\s*([A-Za-z0-9][A-Za-z0-9-]*)`)
	amountPattern    = regexp.MustCompile(`(?i)(?:total|amount|price)\s*:?\s*(?:rs\.?|₹|inr|\$|usd)?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	orderDatePattern = regexp.MustCompile(`(?i)order\s+date\s*:?\s*([A-Za-z0-9,/\- ]+)`)
	productPattern   = regexp.MustCompile(`([A-Za-z][A-Za-z0-9 &'-]*?)\s+(?:x\s*([0-9]+)\s+)?(?:Rs\.?|₹|INR|\$)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	digitPattern     = regexp.MustCompile(`[0-9]`)
)

// bodyDateLayouts are tried in order against the "Order Date:" phrase.
var bodyDateLayouts = []string{
	"2 January 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"2006-01-02",
	"02/01/2006",
}

// Parse extracts an Order from the message, or returns nil when the
// message is not a recognizable order notification. It is pure: given
// the same message and clock value it always returns the same result.
func Parse(msg *gmail.RawMessage, now time.Time) *order.Order {
	if msg == nil {
		return nil
	}

	merchant := matchMerchant(msg.Header("From"))
	if merchant == "" {
		return nil
	}

	body, ok := decodeBody(msg.Payload)
	if !ok {
		return nil
	}

	orderID := extractOrderID(body)
	if orderID == "" {
		return nil
	}

	return &order.Order{
		OrderID:  orderID,
		Merchant: merchant,
		Amount:   extractAmount(body),
		Date:     extractDate(msg.Header("Date"), body, now),
		Status:   extractStatus(body),
		Products: extractProducts(body),
	}
}

func matchMerchant(from string) string {
	from = strings.ToLower(from)
	for _, m := range knownMerchants {
		if strings.Contains(from, m.match) {
			return m.name
		}
	}
	return ""
}

// decodeBody picks the first multipart child with a payload, falling
// back to the top-level payload, and base64url-decodes it. Any
// missing or undecodable payload fails closed.
func decodeBody(payload gmail.MessagePart) (string, bool) {
	data := payload.Data
	if len(payload.Parts) > 0 && payload.Parts[0].Data != "" {
		data = payload.Parts[0].Data
	}
	if data == "" {
		return "", false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(strings.TrimSpace(data))
		if err != nil {
			return "", false
		}
	}
	return string(decoded), true
}

// extractOrderID returns the first "Order ..." identifier token that
// contains a digit. The digit requirement keeps prose like
// "Order Date:" from being read as an identifier.
func extractOrderID(body string) string {
	for _, m := range orderIDPattern.FindAllStringSubmatch(body, -1) {
		if digitPattern.MatchString(m[1]) {
			return m[1]
		}
	}
	return ""
}

func extractAmount(body string) float64 {
	m := amountPattern.FindStringSubmatch(body)
	if m == nil {
		return 0
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || amount < 0 {
		return 0
	}
	return amount
}

// extractDate prefers the message's own Date header, then an
// "Order Date:" phrase in the body, then the extraction time.
func extractDate(dateHeader, body string, now time.Time) time.Time {
	if dateHeader != "" {
		if t, err := mail.ParseDate(dateHeader); err == nil {
			return t
		}
	}

	if m := orderDatePattern.FindStringSubmatch(body); m != nil {
		candidate := strings.TrimSpace(m[1])
		// The phrase match is greedy; retry with trailing words
		// dropped so "12 March 2024 Thank you" still parses.
		for candidate != "" {
			for _, layout := range bodyDateLayouts {
				if t, err := time.Parse(layout, candidate); err == nil {
					return t
				}
			}
			i := strings.LastIndexByte(candidate, ' ')
			if i < 0 {
				break
			}
			candidate = strings.TrimSpace(candidate[:i])
		}
	}

	return now
}

// extractStatus scans for status keywords. Precedence is fixed:
// delivered, then cancelled, then returned; first category wins.
func extractStatus(body string) order.Status {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "delivered") || strings.Contains(lower, "completed"):
		return order.StatusDelivered
	case strings.Contains(lower, "cancelled") || strings.Contains(lower, "canceled"):
		return order.StatusCancelled
	case strings.Contains(lower, "returned") || strings.Contains(lower, "refund"):
		return order.StatusReturned
	default:
		return order.StatusProcessing
	}
}

// extractProducts collects "<name> [xN] <currency><price>" lines.
// Zero matches is a valid outcome, not a failure.
func extractProducts(body string) []order.Product {
	var products []order.Product
	for _, m := range productPattern.FindAllStringSubmatch(body, -1) {
		price, err := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", ""), 64)
		if err != nil || price < 0 {
			continue
		}

		quantity := 1
		if m[2] != "" {
			if q, err := strconv.Atoi(m[2]); err == nil && q >= 1 {
				quantity = q
			}
		}

		products = append(products, order.Product{
			Name:     strings.TrimSpace(m[1]),
			Quantity: quantity,
			Price:    price,
		})
	}
	return products
}
