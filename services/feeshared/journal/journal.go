package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"feeshare/core/events"
	"feeshare/core/types"
	"feeshare/observability"
)

const defaultListLimit = 100

// MaxListLimit bounds a single List page.
const MaxListLimit = 1000

// Record is the persisted form of a committed event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// TableName pins the table name across drivers.
func (Record) TableName() string { return "feeshare_events" }

// Entry is a decoded journal record.
type Entry struct {
	Seq        uint64            `json:"seq"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Event returns the attribute form of the entry.
func (e Entry) Event() *types.Event {
	return &types.Event{Type: e.Type, Attributes: e.Attributes}
}

// Filter narrows a List call.
type Filter struct {
	Type     string
	AfterSeq uint64
	Limit    int
}

// Open connects to the journal database.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return db, nil
}

// Journal persists every committed event and fans it out to live
// subscribers. It implements events.Emitter.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	seq      uint64
	subs     map[int]*Subscription
	nextSub  int
	dropped  uint64
	failures uint64
}

// Health summarises the journal for operators. AppendFailures above zero
// means committed state changes exist that the log cannot replay.
type Health struct {
	Seq               uint64 `json:"seq"`
	AppendFailures    uint64 `json:"appendFailures"`
	DroppedDeliveries uint64 `json:"droppedDeliveries"`
}

// Degraded reports whether the stored history is known to be incomplete.
func (h Health) Degraded() bool { return h.AppendFailures > 0 }

// Subscription is a live feed of appended entries. A full buffer drops
// entries and marks the subscription lagged; readers recover the gap
// with List.
type Subscription struct {
	ch     chan Entry
	lagged atomic.Bool
	cancel func()
}

// Entries returns the live feed. It is closed by Close.
func (s *Subscription) Entries() <-chan Entry { return s.ch }

// Lagged reports whether entries were dropped since the previous call.
func (s *Subscription) Lagged() bool { return s.lagged.Swap(false) }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() { s.cancel() }

var _ events.Emitter = (*Journal)(nil)

// New migrates the schema and resumes the sequence from the stored log.
func New(db *gorm.DB, log *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: nil database")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	var last Record
	seq := uint64(0)
	err := db.Order("seq desc").Limit(1).Take(&last).Error
	switch {
	case err == nil:
		seq = last.Seq
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("journal: load sequence: %w", err)
	}
	return &Journal{
		db:     db,
		logger: log.With(slog.String("component", "journal")),
		now:    time.Now,
		seq:    seq,
		subs:   make(map[int]*Subscription),
	}, nil
}

// Emit appends evt to the journal. The state change behind the event has
// already been committed, so a failure is counted and the journal reports
// itself degraded.
func (j *Journal) Emit(evt events.Event) {
	if _, err := j.Append(context.Background(), evt); err != nil {
		eventType := ""
		if evt != nil {
			eventType = evt.EventType()
		}
		j.mu.Lock()
		j.failures++
		j.mu.Unlock()
		observability.Journal().RecordAppendFailure(eventType)
		j.logger.Error("journal append failed, history is incomplete",
			slog.String("type", eventType),
			slog.Any("error", err))
	}
}

// Append persists evt and returns its entry.
func (j *Journal) Append(ctx context.Context, evt events.Event) (*Entry, error) {
	flat := events.Flatten(evt)
	if flat == nil {
		return nil, errors.New("journal: nil event")
	}
	attrs, err := json.Marshal(flat.Attributes)
	if err != nil {
		return nil, fmt.Errorf("journal: encode attributes: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	record := Record{
		ID:         uuid.New(),
		Seq:        j.seq + 1,
		Type:       flat.Type,
		Attributes: string(attrs),
		CreatedAt:  j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("journal: insert: %w", err)
	}
	j.seq = record.Seq
	entry := Entry{
		Seq:        record.Seq,
		ID:         record.ID.String(),
		Type:       record.Type,
		Attributes: flat.Attributes,
		CreatedAt:  record.CreatedAt,
	}
	for _, sub := range j.subs {
		select {
		case sub.ch <- entry:
		default:
			sub.lagged.Store(true)
			j.dropped++
			observability.Journal().RecordDroppedDelivery()
		}
	}
	return &entry, nil
}

// List returns entries in sequence order.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	query := j.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", filter.AfterSeq)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	var records []Record
	if err := query.Order("seq asc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	out := make([]Entry, 0, len(records))
	for _, record := range records {
		entry, err := decode(record)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Replay rebuilds the staking and harvest totals from the full journal.
func (j *Journal) Replay(ctx context.Context) (*events.Totals, error) {
	var log []*types.Event
	after := uint64(0)
	for {
		page, err := j.List(ctx, Filter{AfterSeq: after, Limit: MaxListLimit})
		if err != nil {
			return nil, err
		}
		for _, entry := range page {
			log = append(log, entry.Event())
		}
		if len(page) < MaxListLimit {
			break
		}
		after = page[len(page)-1].Seq
	}
	return events.Replay(log)
}

// Subscribe registers a live listener with the given buffer size.
func (j *Journal) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscription{ch: make(chan Entry, buffer)}
	j.mu.Lock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = sub
	j.mu.Unlock()

	var once sync.Once
	sub.cancel = func() {
		once.Do(func() {
			j.mu.Lock()
			delete(j.subs, id)
			j.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub
}

// Health reports the head sequence and failure counters.
func (j *Journal) Health() Health {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Health{Seq: j.seq, AppendFailures: j.failures, DroppedDeliveries: j.dropped}
}

// Close closes the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func decode(record Record) (Entry, error) {
	attrs := map[string]string{}
	if record.Attributes != "" {
		if err := json.Unmarshal([]byte(record.Attributes), &attrs); err != nil {
			return Entry{}, fmt.Errorf("journal: decode entry %d: %w", record.Seq, err)
		}
	}
	return Entry{
		Seq:        record.Seq,
		ID:         record.ID.String(),
		Type:       record.Type,
		Attributes: attrs,
		CreatedAt:  record.CreatedAt,
	}, nil
}
