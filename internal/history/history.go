// Package history records question/answer exchanges to an external store.
// Recording is best-effort and never affects the answer returned to a user.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Exchange is one answered question.
type Exchange struct {
	ID               uuid.UUID `json:"id"`
	Scope            string    `json:"scope,omitempty"`
	URL              string    `json:"url"`
	Title            string    `json:"title,omitempty"`
	Question         string    `json:"question"`
	Answer           string    `json:"answer"`
	Suggestions      []string  `json:"suggestions"`
	Locale           string    `json:"locale"`
	SiteType         string    `json:"siteType"`
	ProviderID       string    `json:"providerId"`
	Model            string    `json:"model,omitempty"`
	CacheHit         bool      `json:"cacheHit"`
	PromptTokens     int64     `json:"promptTokens,omitempty"`
	CompletionTokens int64     `json:"completionTokens,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Sink accepts exchanges.
type Sink interface {
	Record(ctx context.Context, ex Exchange) error
}

// Handler consumes recorded exchanges.
type Handler func(context.Context, Exchange) error

// Noop discards every exchange.
type Noop struct{}

func (Noop) Record(context.Context, Exchange) error { return nil }

// prepare fills the id and timestamp of ex.
func prepare(ex Exchange) Exchange {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	return ex
}
