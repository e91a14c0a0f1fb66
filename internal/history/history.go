// Package history persists a bounded log of past generation attempts.
//
// Three backends are available: a single JSON file (FileStore), a key per
// record in Redis (RedisStore) and a SQLite table (SQLiteStore). Records are
// immutable once written; deletion is exact-id removal.
package history

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultListLimit is the page size used when a caller passes limit <= 0.
const DefaultListLimit = 50

// MaxListLimit caps a single page.
const MaxListLimit = 1000

// Record is one persisted generation attempt.
type Record struct {
	ID          string   `json:"id"`
	Timestamp   int64    `json:"timestamp"` // unix milliseconds
	Date        string   `json:"date"`
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model"`
	Style       string   `json:"style"`
	AspectRatio string   `json:"aspectRatio"`
	NumImages   int      `json:"numImages"`
	ImageURLs   []string `json:"imageUrls"`
	Credits     int      `json:"credits,omitempty"`
	Success     bool     `json:"success"`
	Error       string   `json:"error,omitempty"`
}

// Page is one slice of the history, newest first.
type Page struct {
	Records    []Record `json:"records"`
	Total      int      `json:"total"`
	HasMore    bool     `json:"hasMore"`
	NextCursor string   `json:"cursor,omitempty"`
}

// Stats aggregates the records currently held by a store.
type Stats struct {
	Total       int            `json:"total"`
	ByModel     map[string]int `json:"byModel"`
	ByStyle     map[string]int `json:"byStyle"`
	ByDay       map[string]int `json:"byDay"`
	TotalImages int            `json:"totalImages"`
}

// Store is a history backend.
type Store interface {
	// Append stamps rec with a fresh id and timestamp and stores it.
	Append(ctx context.Context, rec Record) (Record, error)
	// List returns up to limit records starting at cursor, newest first.
	List(ctx context.Context, limit int, cursor string) (*Page, error)
	// Delete removes the record with id. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error
	// Stats aggregates every stored record.
	Stats(ctx context.Context) (*Stats, error)
	// Records returns every stored record, newest first.
	Records(ctx context.Context) ([]Record, error)
	// Backend names the storage medium.
	Backend() string
	Close() error
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// stamp assigns id, timestamp and date. Ids are "<unix-ms>-<9 base36 chars>".
func stamp(rec Record, now time.Time) Record {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	rec.Timestamp = now.UnixMilli()
	rec.ID = strconv.FormatInt(rec.Timestamp, 10) + "-" + string(suffix)
	rec.Date = now.UTC().Format(time.RFC3339Nano)
	if rec.Style == "" {
		rec.Style = "none"
	}
	if rec.ImageURLs == nil {
		rec.ImageURLs = []string{}
	}
	rec.NumImages = len(rec.ImageURLs)
	return rec
}

func computeStats(records []Record) *Stats {
	st := &Stats{
		Total:   len(records),
		ByModel: map[string]int{},
		ByStyle: map[string]int{},
		ByDay:   map[string]int{},
	}
	for _, r := range records {
		st.ByModel[r.Model]++
		if r.Style != "" {
			st.ByStyle[r.Style]++
		}
		day := time.UnixMilli(r.Timestamp).UTC().Format("2006-01-02")
		st.ByDay[day]++
		st.TotalImages += len(r.ImageURLs)
	}
	return st
}

// sortNewestFirst orders by timestamp, then id, descending.
func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp != records[j].Timestamp {
			return records[i].Timestamp > records[j].Timestamp
		}
		return records[i].ID > records[j].ID
	})
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// parseOffset reads an offset cursor. Anything unparsable starts at zero.
func parseOffset(cursor string) int {
	n, err := strconv.Atoi(strings.TrimSpace(cursor))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// pageOf slices an already ordered list with offset paging.
func pageOf(all []Record, limit int, cursor string) *Page {
	limit = normalizeLimit(limit)
	offset := parseOffset(cursor)
	total := len(all)

	p := &Page{Records: []Record{}, Total: total}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		p.Records = append(p.Records, all[offset:end]...)
	}
	p.HasMore = offset+limit < total
	if p.HasMore {
		p.NextCursor = strconv.Itoa(offset + limit)
	}
	return p
}
