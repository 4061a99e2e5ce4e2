package replicate

import (
	"context"
	"log"
	"strings"

	"github.com/c0t0ber/finance-gpt/internal/store"
)

// RecordSource yields the most recently inserted expense for a conversation.
type RecordSource interface {
	LastRecord(conversationID int64) (*store.Expense, error)
}

// Appender appends one row of values to the external log.
type Appender interface {
	AppendRow(ctx context.Context, values []any) error
}

// ShouldReplicate decides from the query and result text alone whether a
// write worth mirroring happened: the query starts with INSERT and the result
// carries no error. It is a syntactic heuristic, not a rows-affected check.
func ShouldReplicate(query, result string) bool {
	return strings.HasPrefix(strings.ToLower(query), "insert") &&
		!strings.Contains(strings.ToLower(result), "error")
}

// Replicator mirrors freshly inserted expenses into an append-only external
// log. Everything here is best-effort: failures are logged and never reach
// the caller.
type Replicator struct {
	records RecordSource
	sheet   Appender
}

func NewReplicator(records RecordSource, sheet Appender) *Replicator {
	return &Replicator{records: records, sheet: sheet}
}

// MaybeReplicate appends the conversation's last record when ShouldReplicate
// holds. A missing record (insert raced away or the fetch failed) skips the
// append silently apart from a log line.
func (r *Replicator) MaybeReplicate(ctx context.Context, conversationID int64, query, result string) {
	if !ShouldReplicate(query, result) {
		return
	}

	rec, err := r.records.LastRecord(conversationID)
	if err != nil {
		log.Printf("[replicate] fetch last record for %d failed, skipping: %v", conversationID, err)
		return
	}
	if rec == nil {
		log.Printf("[replicate] no record found for %d after insert, skipping", conversationID)
		return
	}

	row := []any{rec.Amount, rec.Category, rec.RecordTime, rec.Currency, rec.Description}
	if err := r.sheet.AppendRow(ctx, row); err != nil {
		log.Printf("[replicate] append for %d failed: %v", conversationID, err)
	}
}
