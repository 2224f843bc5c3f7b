package record

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"filterms/internal/wire"
)

// Signal is one relayed envelope as stored in the history.
type Signal struct {
	ID         int64
	SessionID  string
	ReceivedAt time.Time
	PID        int
	ExeName    string
	// Signal is the envelope's signal field rendered as text.
	Signal string
	// Payload is the verbatim envelope.
	Payload string
}

// ListOptions filters List. Zero values match everything.
type ListOptions struct {
	SessionID string
	PID       int
	Limit     int
}

const signalColumns = "id, session_id, received_at, pid, exename, signal, payload"

// Insert appends a signal and returns its id.
func (s *Store) Insert(ctx context.Context, sig Signal) (int64, error) {
	if sig.ReceivedAt.IsZero() {
		sig.ReceivedAt = time.Now()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO signals (session_id, received_at, pid, exename, signal, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		sig.SessionID,
		sig.ReceivedAt.UTC().Format(time.RFC3339Nano),
		sig.PID,
		sig.ExeName,
		sig.Signal,
		sig.Payload,
	)
	if err != nil {
		return 0, fmt.Errorf("insert signal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("signal id: %w", err)
	}
	return id, nil
}

// List returns the most recent signals first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Signal, error) {
	var (
		where []string
		args  []any
	)
	if opts.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, opts.SessionID)
	}
	if opts.PID > 0 {
		where = append(where, "pid = ?")
		args = append(args, opts.PID)
	}
	query := "SELECT " + signalColumns + " FROM signals"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return signals, nil
}

// Clear removes every stored signal and returns the number removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM signals")
	if err != nil {
		return 0, fmt.Errorf("clear signals: %w", err)
	}
	return res.RowsAffected()
}

func scanSignal(scanner interface{ Scan(dest ...any) error }) (Signal, error) {
	var (
		sig         Signal
		receivedRaw sql.NullString
	)
	if err := scanner.Scan(&sig.ID, &sig.SessionID, &receivedRaw, &sig.PID, &sig.ExeName, &sig.Signal, &sig.Payload); err != nil {
		return Signal{}, fmt.Errorf("scan signal: %w", err)
	}
	if receivedRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, receivedRaw.String); err == nil {
			sig.ReceivedAt = t
		}
	}
	return sig, nil
}

// Sink records every delivered envelope under one session id.
type Sink struct {
	store     *Store
	sessionID string
}

// NewSink binds the store to an aggregator session.
func NewSink(store *Store, sessionID string) *Sink {
	return &Sink{store: store, sessionID: sessionID}
}

// Deliver decodes the envelope and appends it to the history.
func (k *Sink) Deliver(ctx context.Context, frame []byte) error {
	env, err := wire.DecodeEnvelope(frame)
	if err != nil {
		return fmt.Errorf("record signal: %w", err)
	}
	_, err = k.store.Insert(ctx, Signal{
		SessionID: k.sessionID,
		PID:       env.PID,
		ExeName:   env.ExeName,
		Signal:    env.SignalText(),
		Payload:   string(frame),
	})
	return err
}
