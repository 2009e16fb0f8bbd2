package extraction

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	gmail_domain "github.com/reworx/mailorder/internal/domain/gmail"
	order_domain "github.com/reworx/mailorder/internal/domain/order"
	user_domain "github.com/reworx/mailorder/internal/domain/user"
	"golang.org/x/oauth2"
)

type fakeMailbox struct {
	exchange func(code string) (*oauth2.Token, error)
	search   func(query string) ([]gmail_domain.MessageRef, error)
	get      func(ref gmail_domain.MessageRef) (*gmail_domain.RawMessage, error)
}

var _ gmail_domain.MailboxRepo = (*fakeMailbox)(nil)

func (f *fakeMailbox) GetAuthURL(state string) string {
	return "https://accounts.example/auth?state=" + state
}

func (f *fakeMailbox) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	if f.exchange != nil {
		return f.exchange(code)
	}
	return &oauth2.Token{AccessToken: "access-" + code}, nil
}

func (f *fakeMailbox) Search(_ context.Context, _ *oauth2.Token, query string, _ int64) ([]gmail_domain.MessageRef, error) {
	if f.search != nil {
		return f.search(query)
	}
	return nil, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, _ *oauth2.Token, ref gmail_domain.MessageRef) (*gmail_domain.RawMessage, error) {
	return f.get(ref)
}

type fakeUserRepo struct {
	users  map[string]*user_domain.User
	tokens map[string]*oauth2.Token
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:  make(map[string]*user_domain.User),
		tokens: make(map[string]*oauth2.Token),
	}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *user_domain.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, userID string) (*user_domain.User, error) {
	return f.users[userID], nil
}

func (f *fakeUserRepo) UpdateGmailTokens(_ context.Context, userID string, token *oauth2.Token) error {
	f.tokens[userID] = token
	if u, ok := f.users[userID]; ok {
		access := token.AccessToken
		u.GmailAccessToken = &access
	}
	return nil
}

type fakeOrderRepo struct {
	stored map[string][]order_domain.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{stored: make(map[string][]order_domain.Order)}
}

func (f *fakeOrderRepo) ReplaceOrders(_ context.Context, userID string, orders []order_domain.Order) error {
	f.stored[userID] = orders
	return nil
}

func (f *fakeOrderRepo) GetOrdersByUserID(_ context.Context, userID string) ([]order_domain.Order, error) {
	return f.stored[userID], nil
}

func orderMessage(id, from, body string) *gmail_domain.RawMessage {
	return &gmail_domain.RawMessage{
		ID: id,
		Headers: []gmail_domain.Header{
			{Name: "From", Value: from},
			{Name: "Date", Value: "Tue, 7 May 2024 10:30:00 +0530"},
		},
		Payload: gmail_domain.MessagePart{
			Data: base64.RawURLEncoding.EncodeToString([]byte(body)),
		},
	}
}

func token() *oauth2.Token { return &oauth2.Token{AccessToken: "access"} }

func TestExtractOrdersSkipsTransientFetch(t *testing.T) {
	// Four merchant queries, two of which return one message each;
	// one fetch fails transiently, one parses. The run must still
	// succeed with the single surviving order.
	mailbox := &fakeMailbox{
		search: func(query string) ([]gmail_domain.MessageRef, error) {
			switch {
			case strings.Contains(query, "amazon"):
				return []gmail_domain.MessageRef{{ID: "m1"}}, nil
			case strings.Contains(query, "flipkart"):
				return []gmail_domain.MessageRef{{ID: "m2"}}, nil
			}
			return nil, nil
		},
		get: func(ref gmail_domain.MessageRef) (*gmail_domain.RawMessage, error) {
			if ref.ID == "m1" {
				return nil, &gmail_domain.TransientError{Err: errors.New("rate limited")}
			}
			return orderMessage(ref.ID, "orders@flipkart.com", "Order #FK-100\nTotal: ₹750"), nil
		},
	}

	svc := NewService(mailbox, newFakeUserRepo(), newFakeOrderRepo())
	orders, err := svc.ExtractOrders(context.Background(), token())
	if err != nil {
		t.Fatalf("run should succeed despite the skipped message: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if orders[0].OrderID != "FK-100" || orders[0].Merchant != "Flipkart" {
		t.Fatalf("unexpected order %+v", orders[0])
	}
}

func TestExtractOrdersFirstSearchAuthFailureIsFatal(t *testing.T) {
	mailbox := &fakeMailbox{
		search: func(string) ([]gmail_domain.MessageRef, error) {
			return nil, &gmail_domain.AuthError{Err: errors.New("invalid credentials")}
		},
	}

	svc := NewService(mailbox, newFakeUserRepo(), newFakeOrderRepo())
	_, err := svc.ExtractOrders(context.Background(), token())
	if err == nil {
		t.Fatal("expected a fatal error when the token is rejected up front")
	}
	var authErr *gmail_domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestExtractOrdersStopsAfterMidRunAuthFailure(t *testing.T) {
	var searches int
	mailbox := &fakeMailbox{
		search: func(query string) ([]gmail_domain.MessageRef, error) {
			searches++
			if searches == 1 {
				return []gmail_domain.MessageRef{{ID: "m1"}}, nil
			}
			return nil, &gmail_domain.AuthError{Err: errors.New("token expired")}
		},
		get: func(ref gmail_domain.MessageRef) (*gmail_domain.RawMessage, error) {
			return orderMessage(ref.ID, "orders@amazon.in", "Order #171-1\nTotal: ₹100"), nil
		},
	}

	svc := NewService(mailbox, newFakeUserRepo(), newFakeOrderRepo())
	orders, err := svc.ExtractOrders(context.Background(), token())
	if err != nil {
		t.Fatalf("mid-run auth expiry must not fail the run: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected the pre-expiry order to survive, got %d", len(orders))
	}
	if searches != 2 {
		t.Fatalf("expected no searches after the auth failure, got %d", searches)
	}
}

func TestExtractOrdersSkipsFailedQueryAndContinues(t *testing.T) {
	mailbox := &fakeMailbox{
		search: func(query string) ([]gmail_domain.MessageRef, error) {
			if strings.Contains(query, "myntra") {
				return nil, &gmail_domain.TransientError{Err: errors.New("timeout")}
			}
			return []gmail_domain.MessageRef{{ID: query}}, nil
		},
		get: func(ref gmail_domain.MessageRef) (*gmail_domain.RawMessage, error) {
			return orderMessage(ref.ID, "orders@amazon.in", "Order #A-1\nTotal: ₹10"), nil
		},
	}

	svc := NewService(mailbox, newFakeUserRepo(), newFakeOrderRepo())
	orders, err := svc.ExtractOrders(context.Background(), token())
	if err != nil {
		t.Fatalf("a failed query must not fail the run: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders from the remaining queries, got %d", len(orders))
	}
}

func TestExtractOrdersSkipsNotFoundAndNilParse(t *testing.T) {
	mailbox := &fakeMailbox{
		search: func(query string) ([]gmail_domain.MessageRef, error) {
			if strings.Contains(query, "amazon") {
				return []gmail_domain.MessageRef{{ID: "gone"}, {ID: "noise"}, {ID: "good"}}, nil
			}
			return nil, nil
		},
		get: func(ref gmail_domain.MessageRef) (*gmail_domain.RawMessage, error) {
			switch ref.ID {
			case "gone":
				return nil, &gmail_domain.NotFoundError{Err: errors.New("deleted")}
			case "noise":
				// Recognized sender but no order id: parser yields nil.
				return orderMessage(ref.ID, "orders@amazon.in", "Big sale this weekend!"), nil
			}
			return orderMessage(ref.ID, "orders@amazon.in", "Order #171-9\nDelivered today"), nil
		},
	}

	svc := NewService(mailbox, newFakeUserRepo(), newFakeOrderRepo())
	orders, err := svc.ExtractOrders(context.Background(), token())
	if err != nil {
		t.Fatalf("skips must not fail the run: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if orders[0].Status != order_domain.StatusDelivered {
		t.Fatalf("unexpected status %q", orders[0].Status)
	}
}

func TestExtractOrdersCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(&fakeMailbox{}, newFakeUserRepo(), newFakeOrderRepo())
	_, err := svc.ExtractOrders(ctx, token())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to surface, got %v", err)
	}
}

func TestConnectMailboxStoresTokensAndOrders(t *testing.T) {
	mailbox := &fakeMailbox{
		search: func(query string) ([]gmail_domain.MessageRef, error) {
			if strings.Contains(query, "amazon") {
				return []gmail_domain.MessageRef{{ID: "m1"}, {ID: "m2"}}, nil
			}
			return nil, nil
		},
		get: func(ref gmail_domain.MessageRef) (*gmail_domain.RawMessage, error) {
			if ref.ID == "m1" {
				return orderMessage(ref.ID, "orders@amazon.in", "Order #171-1\nDelivered"), nil
			}
			return orderMessage(ref.ID, "orders@amazon.in", "Order #171-2\nShipped"), nil
		},
	}
	userRepo := newFakeUserRepo()
	orderRepo := newFakeOrderRepo()

	svc := NewService(mailbox, userRepo, orderRepo)
	result, err := svc.ConnectMailbox(context.Background(), "user-1", "auth-code")
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if userRepo.tokens["user-1"] == nil || userRepo.tokens["user-1"].AccessToken != "access-auth-code" {
		t.Fatalf("expected exchanged token to be stored, got %+v", userRepo.tokens["user-1"])
	}
	if len(orderRepo.stored["user-1"]) != 2 {
		t.Fatalf("expected 2 stored orders, got %d", len(orderRepo.stored["user-1"]))
	}
	if result.Summary.Total != 2 || result.Summary.Delivered != 1 || result.Summary.Processing != 1 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}
}

func TestConnectMailboxExchangeFailure(t *testing.T) {
	mailbox := &fakeMailbox{
		exchange: func(string) (*oauth2.Token, error) {
			return nil, &gmail_domain.AuthError{Err: errors.New("code already consumed")}
		},
	}

	svc := NewService(mailbox, newFakeUserRepo(), newFakeOrderRepo())
	_, err := svc.ConnectMailbox(context.Background(), "user-1", "stale-code")
	var authErr *gmail_domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError from a failed exchange, got %v", err)
	}
}

func TestConnectMailboxEmptyRunIsSuccess(t *testing.T) {
	// Every query matches nothing: the run is "connected, no orders
	// found", not a failure.
	svc := NewService(&fakeMailbox{}, newFakeUserRepo(), newFakeOrderRepo())
	result, err := svc.ConnectMailbox(context.Background(), "user-1", "auth-code")
	if err != nil {
		t.Fatalf("empty run must succeed: %v", err)
	}
	if result.Orders == nil || len(result.Orders) != 0 {
		t.Fatalf("expected an empty, non-nil order list, got %+v", result.Orders)
	}
	if result.Summary != (order_domain.Summary{}) {
		t.Fatalf("expected zero summary, got %+v", result.Summary)
	}
}

func TestSyncOrdersWithoutCredentials(t *testing.T) {
	svc := NewService(&fakeMailbox{}, newFakeUserRepo(), newFakeOrderRepo())
	_, err := svc.SyncOrders(context.Background(), "unknown-user")
	var authErr *gmail_domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError for a user without credentials, got %v", err)
	}
}

func TestSyncOrdersUsesStoredToken(t *testing.T) {
	access := "stored-access"
	userRepo := newFakeUserRepo()
	userRepo.users["user-1"] = &user_domain.User{ID: "user-1", GmailAccessToken: &access}

	mailbox := &fakeMailbox{
		search: func(query string) ([]gmail_domain.MessageRef, error) {
			if strings.Contains(query, "meesho") {
				return []gmail_domain.MessageRef{{ID: "m1"}}, nil
			}
			return nil, nil
		},
		get: func(ref gmail_domain.MessageRef) (*gmail_domain.RawMessage, error) {
			return orderMessage(ref.ID, "care@meesho.com", "Order #MSH-7\nTotal: Rs. 299\nReturned and refund issued"), nil
		},
	}

	svc := NewService(mailbox, userRepo, newFakeOrderRepo())
	result, err := svc.SyncOrders(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.Summary.Total != 1 || result.Summary.CancelledOrReturned != 1 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}
	if result.Orders[0].Merchant != "Meesho" || result.Orders[0].Amount != 299 {
		t.Fatalf("unexpected order %+v", result.Orders[0])
	}
}
