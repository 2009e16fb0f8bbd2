package gmail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	gmaildomain "github.com/reworx/mailorder/internal/domain/gmail"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// callTimeout bounds every provider call; a deadline hit is reported
// as a TransientError.
const callTimeout = 20 * time.Second

type mailboxRepo struct {
	config *oauth2.Config
}

var _ gmaildomain.MailboxRepo = (*mailboxRepo)(nil)

func NewMailboxRepo(credentialsPath string) (gmaildomain.MailboxRepo, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmailapi.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	return &mailboxRepo{config: config}, nil
}

// getServiceWithToken creates a Gmail service bound to the provided
// OAuth token.
func (r *mailboxRepo) getServiceWithToken(ctx context.Context, token *oauth2.Token) (*gmailapi.Service, error) {
	client := r.config.Client(ctx, token)
	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create gmail service: %w", err)
	}
	return srv, nil
}

func (r *mailboxRepo) GetAuthURL(state string) string {
	return r.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (r *mailboxRepo) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := r.config.Exchange(ctx, code)
	if err != nil {
		return nil, &gmaildomain.AuthError{Err: fmt.Errorf("failed to exchange code: %w", err)}
	}
	return token, nil
}

func (r *mailboxRepo) Search(ctx context.Context, token *oauth2.Token, query string, maxResults int64) ([]gmaildomain.MessageRef, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	service, err := r.getServiceWithToken(ctx, token)
	if err != nil {
		return nil, err
	}

	res, err := service.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Errorf("unable to search messages: %w", err))
	}

	refs := make([]gmaildomain.MessageRef, 0, len(res.Messages))
	for _, m := range res.Messages {
		refs = append(refs, gmaildomain.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return refs, nil
}

func (r *mailboxRepo) GetMessage(ctx context.Context, token *oauth2.Token, ref gmaildomain.MessageRef) (*gmaildomain.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	service, err := r.getServiceWithToken(ctx, token)
	if err != nil {
		return nil, err
	}

	// Full format: the parser needs the body, not the snippet.
	msg, err := service.Users.Messages.Get("me", ref.ID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Errorf("unable to retrieve message %s: %w", ref.ID, err))
	}

	raw := &gmaildomain.RawMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			raw.Headers = append(raw.Headers, gmaildomain.Header{Name: h.Name, Value: h.Value})
		}
		raw.Payload = toPart(msg.Payload)
	}
	return raw, nil
}

func toPart(p *gmailapi.MessagePart) gmaildomain.MessagePart {
	part := gmaildomain.MessagePart{MimeType: p.MimeType}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		if child == nil {
			continue
		}
		part.Parts = append(part.Parts, toPart(child))
	}
	return part
}

// classify maps provider failures onto the domain error taxonomy.
// 401/403 mean the credential is no longer usable, 404 means the
// message vanished, 429 and 5xx are retryable, and so are timeouts
// and network errors. Context cancellation passes through untouched.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return &gmaildomain.AuthError{Err: err}
		case apiErr.Code == http.StatusNotFound:
			return &gmaildomain.NotFoundError{Err: err}
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return &gmaildomain.TransientError{Err: err}
		}
		return err
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &gmaildomain.TransientError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &gmaildomain.TransientError{Err: err}
	}

	return err
}
