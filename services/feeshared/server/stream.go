package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"feeshare/observability"
	"feeshare/services/feeshared/journal"
)

const (
	wsWriteTimeout      = 10 * time.Second
	defaultStreamBuffer = 256
)

// handleStream upgrades to a websocket and streams journal entries. The
// backlog after the "after" cursor is sent first, then live entries.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are only used to notice the client going away.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEntries(ctx, conn, filter); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			s.logger.Warn("event stream failed", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEntries(ctx context.Context, conn *websocket.Conn, filter journal.Filter) error {
	// Subscribe before reading the backlog so nothing committed in between
	// is missed; duplicates are skipped by sequence.
	sub := s.journal.Subscribe(s.streamBuffer)
	defer sub.Close()

	last, err := s.sendFrom(ctx, conn, filter.Type, filter.AfterSeq)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-sub.Entries():
			if !ok {
				return nil
			}
			if sub.Lagged() {
				// Live entries were dropped. Everything delivered to the
				// subscription is already stored, so re-read from the store.
				observability.Journal().RecordStreamResync()
				if last, err = s.sendFrom(ctx, conn, filter.Type, last); err != nil {
					return err
				}
			}
			if entry.Seq <= last {
				continue
			}
			if filter.Type != "" && entry.Type != filter.Type {
				continue
			}
			if err := writeEntry(ctx, conn, entry); err != nil {
				return err
			}
			last = entry.Seq
		}
	}
}

// sendFrom writes every stored entry after the cursor and returns the new
// cursor.
func (s *Server) sendFrom(ctx context.Context, conn *websocket.Conn, eventType string, after uint64) (uint64, error) {
	for {
		page, err := s.journal.List(ctx, journal.Filter{Type: eventType, AfterSeq: after, Limit: journal.MaxListLimit})
		if err != nil {
			return after, err
		}
		for _, entry := range page {
			if err := writeEntry(ctx, conn, entry); err != nil {
				return after, err
			}
			after = entry.Seq
		}
		if len(page) < journal.MaxListLimit {
			return after, nil
		}
	}
}

func writeEntry(ctx context.Context, conn *websocket.Conn, entry journal.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
