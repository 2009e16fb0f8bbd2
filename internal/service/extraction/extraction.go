// Package extraction drives the mailbox-to-order-history pipeline:
// search each merchant's order emails, fetch and parse every match,
// and reduce the survivors into a stored, summarized order history.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gmail_domain "github.com/reworx/mailorder/internal/domain/gmail"
	order_domain "github.com/reworx/mailorder/internal/domain/order"
	user_domain "github.com/reworx/mailorder/internal/domain/user"
	"github.com/reworx/mailorder/internal/parser"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	maxResultsPerQuery = 100
	fetchConcurrency   = 10
)

// merchantQueries narrows each search to one merchant's order
// notifications. One query per merchant beats a single broad query:
// sender filters are far more precise, and the parser can trust the
// sender match instead of rediscovering the merchant from content.
var merchantQueries = []string{
	"from:amazon.in subject:order",
	"from:flipkart.com subject:order",
	"from:myntra.com subject:order",
	"from:meesho.com subject:order",
}

// Result is one extraction run's output: the parsed orders and their
// status summary. Orders is never nil.
type Result struct {
	Orders  []order_domain.Order `json:"orders"`
	Summary order_domain.Summary `json:"summary"`
}

type Service struct {
	mailboxRepo gmail_domain.MailboxRepo
	userRepo    user_domain.UserRepo
	orderRepo   order_domain.OrderRepo
	now         func() time.Time
}

func NewService(mailboxRepo gmail_domain.MailboxRepo, userRepo user_domain.UserRepo, orderRepo order_domain.OrderRepo) *Service {
	return &Service{
		mailboxRepo: mailboxRepo,
		userRepo:    userRepo,
		orderRepo:   orderRepo,
		now:         time.Now,
	}
}

func (s *Service) AuthURL(state string) string {
	return s.mailboxRepo.GetAuthURL(state)
}

// ConnectMailbox exchanges the authorization code, stores the token
// pair against the user, and runs a full extraction. An exchange
// failure is fatal: without a token no partial progress is possible.
func (s *Service) ConnectMailbox(ctx context.Context, userID, code string) (*Result, error) {
	token, err := s.mailboxRepo.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		user = &user_domain.User{ID: userID}
		if err := s.userRepo.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	}
	if err := s.userRepo.UpdateGmailTokens(ctx, userID, token); err != nil {
		return nil, fmt.Errorf("failed to save tokens: %w", err)
	}

	slog.Info("mailbox connected", "user_id", userID)
	return s.runExtraction(ctx, userID, token)
}

// SyncOrders re-runs extraction with the user's stored token pair.
func (s *Service) SyncOrders(ctx context.Context, userID string) (*Result, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || user.GmailAccessToken == nil || *user.GmailAccessToken == "" {
		return nil, &gmail_domain.AuthError{Err: errors.New("user has no gmail credentials")}
	}

	return s.runExtraction(ctx, userID, s.userToken(user))
}

// OrderHistory returns the stored orders and their summary.
func (s *Service) OrderHistory(ctx context.Context, userID string) (*Result, error) {
	orders, err := s.orderRepo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	return newResult(orders), nil
}

func (s *Service) runExtraction(ctx context.Context, userID string, token *oauth2.Token) (*Result, error) {
	orders, err := s.ExtractOrders(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := s.orderRepo.ReplaceOrders(ctx, userID, orders); err != nil {
		return nil, fmt.Errorf("failed to store orders: %w", err)
	}

	slog.Info("extraction completed", "user_id", userID, "orders", len(orders))
	return newResult(orders), nil
}

// ExtractOrders runs one search per merchant query and fans out
// fetch+parse over every matched message. Per-message failures and
// nil parses are skipped; the run only fails when the token is
// rejected before any progress or the caller cancels. The returned
// list is unordered and not deduplicated by order id.
func (s *Service) ExtractOrders(ctx context.Context, token *oauth2.Token) ([]order_domain.Order, error) {
	var (
		mu          sync.Mutex
		orders      []order_domain.Order
		authExpired atomic.Bool
	)

	for i, query := range merchantQueries {
		if err := ctx.Err(); err != nil {
			return orders, err
		}
		if authExpired.Load() {
			break
		}

		refs, err := s.mailboxRepo.Search(ctx, token, query, maxResultsPerQuery)
		if err != nil {
			var authErr *gmail_domain.AuthError
			if errors.As(err, &authErr) {
				if i == 0 {
					return nil, fmt.Errorf("mailbox search failed: %w", err)
				}
				// Token died mid-run: stop issuing new calls.
				slog.Warn("token rejected mid-run, stopping", "query", query)
				break
			}
			if ctx.Err() != nil {
				return orders, ctx.Err()
			}
			slog.Warn("skipping query", "query", query, "error", err)
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fetchConcurrency)
		for _, ref := range refs {
			ref := ref
			g.Go(func() error {
				msg, err := s.mailboxRepo.GetMessage(gctx, token, ref)
				if err != nil {
					var authErr *gmail_domain.AuthError
					if errors.As(err, &authErr) {
						authExpired.Store(true)
					}
					slog.Warn("skipping message", "message_id", ref.ID, "error", err)
					return nil
				}

				if o := parser.Parse(msg, s.now()); o != nil {
					mu.Lock()
					orders = append(orders, *o)
					mu.Unlock()
				}
				return nil
			})
		}
		// Workers never return errors; Wait only synchronizes.
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return orders, err
	}
	return orders, nil
}

// Summarize reduces an order list into its status summary.
func (s *Service) Summarize(orders []order_domain.Order) order_domain.Summary {
	return order_domain.Summarize(orders)
}

// userToken rebuilds an oauth2.Token from the user's stored fields.
func (s *Service) userToken(user *user_domain.User) *oauth2.Token {
	token := &oauth2.Token{}
	if user.GmailAccessToken != nil {
		token.AccessToken = *user.GmailAccessToken
	}
	if user.GmailRefreshToken != nil {
		token.RefreshToken = *user.GmailRefreshToken
	}
	if user.GmailTokenExpiresAt != nil {
		token.Expiry = time.Unix(*user.GmailTokenExpiresAt, 0)
	}
	return token
}

func newResult(orders []order_domain.Order) *Result {
	if orders == nil {
		orders = []order_domain.Order{}
	}
	return &Result{
		Orders:  orders,
		Summary: order_domain.Summarize(orders),
	}
}
