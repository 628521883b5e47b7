package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/custodia-labs/vellum/internal/adapters/driven/mail/eml"
	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/logger"
)

// Ensure Fetcher implements the interface.
var _ driven.MailFetcher = (*Fetcher)(nil)

// ServiceFactory returns a Gmail client authorised for an account.
type ServiceFactory func(ctx context.Context, account string) (*gmail.Service, error)

// Config holds fetcher configuration.
type Config struct {
	// LabelIDs limits fetching to messages with these labels.
	LabelIDs []string

	// PageSize is the list page size.
	PageSize int64

	// MaxListed bounds the number of message IDs listed per fetch.
	MaxListed int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		LabelIDs:  []string{"INBOX"},
		PageSize:  100,
		MaxListed: 5000,
	}
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithConfig replaces the fetcher configuration.
func WithConfig(cfg Config) Option {
	return func(f *Fetcher) {
		f.cfg = cfg
	}
}

// WithRateLimiter replaces the default rate limiter.
func WithRateLimiter(l *RateLimiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// Fetcher implements driven.MailFetcher for Gmail.
type Fetcher struct {
	newService ServiceFactory
	limiter    *RateLimiter
	cfg        Config
}

// NewFetcher creates a Gmail fetcher.
func NewFetcher(factory ServiceFactory, opts ...Option) *Fetcher {
	f := &Fetcher{
		newService: factory,
		limiter:    NewRateLimiter(DefaultRateLimit),
		cfg:        DefaultConfig(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchMessages returns up to limit messages received after since,
// oldest first. When more are available the oldest ones are returned so
// the caller's cursor never skips a message.
func (f *Fetcher) FetchMessages(
	ctx context.Context, account string, since time.Time, limit int,
) ([]domain.RawMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	svc, err := f.newService(ctx, account)
	if err != nil {
		return nil, err
	}

	ids, err := f.listIDs(ctx, svc, since)
	if err != nil {
		return nil, err
	}

	// The API lists newest first
	if len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}

	messages := make([]domain.RawMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := f.getMessage(ctx, svc, id)
		if err != nil {
			return nil, err
		}
		if msg == nil || !msg.ReceivedAt.After(since) {
			continue
		}
		messages = append(messages, *msg)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})
	logger.Debug("gmail: fetched %d messages for %s", len(messages), account)
	return messages, nil
}

func (f *Fetcher) listIDs(ctx context.Context, svc *gmail.Service, since time.Time) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		call := svc.Users.Messages.List("me").MaxResults(f.cfg.PageSize).Context(ctx)
		if len(f.cfg.LabelIDs) > 0 {
			call = call.LabelIds(f.cfg.LabelIDs...)
		}
		if !since.IsZero() {
			call = call.Q(fmt.Sprintf("after:%d", since.Unix()))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, mapError(err, f.limiter, "listing messages")
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || (f.cfg.MaxListed > 0 && len(ids) >= f.cfg.MaxListed) {
			return ids, nil
		}
	}
}

func (f *Fetcher) getMessage(ctx context.Context, svc *gmail.Service, id string) (*domain.RawMessage, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	m, err := svc.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, mapError(err, f.limiter, "getting message "+id)
	}
	if isSpamOrTrash(m.LabelIds) {
		return nil, nil
	}

	raw, err := decodeRaw(m.Raw)
	if err != nil {
		logger.Warn("gmail: message %s has undecodable body: %v", id, err)
		return nil, nil
	}
	msg, err := eml.Parse(raw)
	if err != nil {
		logger.Warn("gmail: skipping message %s: %v", id, err)
		return nil, nil
	}

	msg.ID = m.Id
	msg.ThreadID = m.ThreadId
	if m.InternalDate > 0 {
		msg.ReceivedAt = time.UnixMilli(m.InternalDate).UTC()
	}
	return msg, nil
}

// decodeRaw decodes the base64url message body, with or without padding.
func decodeRaw(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func isSpamOrTrash(labels []string) bool {
	for _, label := range labels {
		if label == "SPAM" || label == "TRASH" {
			return true
		}
	}
	return false
}
