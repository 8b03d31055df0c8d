package storage

import (
	"context"
	"time"

	"github.com/rhuss/claudepipe/pkg/api"
)

const (
	// DefaultListLimit is used when ListOptions.Limit is unset.
	DefaultListLimit = 20

	// MaxListLimit caps ListOptions.Limit.
	MaxListLimit = 100
)

// UsageRecord is the ledger entry for one completed chat completion.
type UsageRecord struct {
	ID                       string `json:"id"`
	Object                   string `json:"object"`
	TenantID                 string `json:"tenant_id,omitempty"`
	Model                    string `json:"model"`
	Stream                   bool   `json:"stream"`
	InputTokens              int    `json:"input_tokens"`
	OutputTokens             int    `json:"output_tokens"`
	CacheCreationInputTokens int    `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int    `json:"cache_read_input_tokens"`
	FinishReason             string `json:"finish_reason,omitempty"`
	CreatedAt                int64  `json:"created_at"`
}

// TotalTokens returns input plus output tokens.
func (r *UsageRecord) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// NewUsageRecord builds a record from a completion's usage. The tenant is
// taken from ctx. A zero created time is replaced with the current time.
func NewUsageRecord(ctx context.Context, id, model string, stream bool, finishReason string, created int64, u *api.Usage) *UsageRecord {
	if created == 0 {
		created = time.Now().Unix()
	}
	r := &UsageRecord{
		ID:           id,
		Object:       "usage.record",
		TenantID:     GetTenant(ctx),
		Model:        model,
		Stream:       stream,
		FinishReason: finishReason,
		CreatedAt:    created,
	}
	if u != nil {
		r.InputTokens = u.PromptTokens
		r.OutputTokens = u.CompletionTokens
		r.CacheCreationInputTokens = u.CacheCreationInputTokens
		r.CacheReadInputTokens = u.CacheReadInputTokens
	}
	return r
}

// ListOptions filters and bounds a List call.
type ListOptions struct {
	// Model restricts results to one upstream model name.
	Model string

	// Limit is the page size (default 20, max 100).
	Limit int
}

// EffectiveLimit returns Limit clamped to 1..MaxListLimit.
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// UsageList is a page of usage records, newest first.
type UsageList struct {
	Object  string         `json:"object"`
	Data    []*UsageRecord `json:"data"`
	HasMore bool           `json:"has_more"`
	Totals  UsageTotals    `json:"totals"`
}

// UsageTotals sums the token columns of a page.
type UsageTotals struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// NewUsageList wraps records into a list and computes totals.
func NewUsageList(records []*UsageRecord, hasMore bool) *UsageList {
	if records == nil {
		records = []*UsageRecord{}
	}
	l := &UsageList{Object: "list", Data: records, HasMore: hasMore}
	for _, r := range records {
		l.Totals.InputTokens += r.InputTokens
		l.Totals.OutputTokens += r.OutputTokens
		l.Totals.CacheCreationInputTokens += r.CacheCreationInputTokens
		l.Totals.CacheReadInputTokens += r.CacheReadInputTokens
	}
	return l
}

// UsageStore persists usage records.
type UsageStore interface {
	// Record stores r. It returns ErrConflict if r.ID is already present.
	Record(ctx context.Context, r *UsageRecord) error

	// Get returns the record with the given completion ID, scoped by tenant.
	Get(ctx context.Context, id string) (*UsageRecord, error)

	// List returns the tenant's records, newest first.
	List(ctx context.Context, opts ListOptions) (*UsageList, error)

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
