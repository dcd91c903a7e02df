package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// HistoryEntry is one transcript round.
type HistoryEntry struct {
	Round           int       `json:"round"`
	UserOffer       float64   `json:"user_offer"`
	BotReply        string    `json:"bot_reply"`
	BotCounterOffer *float64  `json:"bot_counter_offer"`
	Timestamp       time.Time `json:"timestamp"`
}

// Contact is the human-contact fallback surfaced on terminal no-deal paths.
type Contact struct {
	Show    bool   `json:"show"`
	Message string `json:"message"`
}

// Record is one finished (or blocked) negotiation session as persisted in the
// transcript log.
type Record struct {
	ID             int64          `json:"id"`
	Quantity       int            `json:"quantity"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ProductCode    string         `json:"product_code"`
	ProductName    string         `json:"product_name"`
	Variant        string         `json:"variant"`
	Price          float64        `json:"price"`
	CostPrice      float64        `json:"cost_price"`
	Firm           string         `json:"firm,omitempty"`
	Category       string         `json:"category,omitempty"`
	NegotiationMin *float64       `json:"negotiation_min"`
	Classification string         `json:"classification"`
	History        []HistoryEntry `json:"history"`
	FinalStatus    string         `json:"final_status,omitempty"`
	FinalPrice     *float64       `json:"final_price"`
	ContactOption  Contact        `json:"contact_option"`
}

// FileLog persists session records as a whole-file JSON array, rewritten on
// each append. IDs are monotonic: max existing + 1. A corrupt or non-array
// file resets to an empty log rather than failing.
type FileLog struct {
	mu   sync.Mutex
	path string
}

func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

// Append assigns the record its ID and rewrites the log. Returns the record
// with the ID filled in.
func (l *FileLog) Append(rec Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all := l.load()
	var maxID int64
	for _, r := range all {
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	rec.ID = maxID + 1
	all = append(all, rec)

	b, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("marshal session log: %w", err)
	}
	if err := os.WriteFile(l.path, b, 0o644); err != nil {
		return Record{}, fmt.Errorf("write session log: %w", err)
	}
	return rec, nil
}

// All returns every persisted record.
func (l *FileLog) All() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *FileLog) load() []Record {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return nil
	}
	var all []Record
	if err := json.Unmarshal(b, &all); err != nil {
		// Corrupt or non-array log resets to empty.
		return nil
	}
	return all
}
