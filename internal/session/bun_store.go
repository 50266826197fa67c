package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/Djimon/DnDBastionManager/internal/model"
)

// BunStore is the opt-in Postgres session backend, for tables where a
// DM wants sessions queryable outside the process rather than sitting
// in flat files.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(dsn string) *BunStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db}
}

func (s *BunStore) InitSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*sessionRow)(nil)).IfNotExists().Exec(ctx)
	return err
}

type sessionRow struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID         uuid.UUID `bun:"id,pk"`
	SessionID  string    `bun:"session_id,unique,notnull"`
	Filename   string    `bun:"filename,notnull"`
	Data       []byte    `bun:"data,type:jsonb,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

// Save upserts state keyed by its session_id, assigning one and a
// stable filename on first save.
func (s *BunStore) Save(ctx context.Context, state *model.SessionState) error {
	if state.SessionID == "" {
		state.SessionID = uuid.NewString()
	}
	if state.SessionFilename == "" {
		state.SessionFilename = state.SessionID + ".json"
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	row := &sessionRow{
		ID:        uuid.New(),
		SessionID: state.SessionID,
		Filename:  state.SessionFilename,
		Data:      data,
		UpdatedAt: time.Now(),
	}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("filename = EXCLUDED.filename, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save session %s: %w", state.SessionID, err)
	}
	return nil
}

// Load fetches a session by id or filename.
func (s *BunStore) Load(ctx context.Context, filename string) (*model.SessionState, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().
		Model(row).
		Where("session_id = ? OR filename = ?", filename, filename).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", filename, err)
	}
	var state model.SessionState
	if err := json.Unmarshal(row.Data, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", filename, err)
	}
	return &state, nil
}

// LoadLatest fetches the most recently updated session.
func (s *BunStore) LoadLatest(ctx context.Context) (*model.SessionState, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).OrderExpr("updated_at DESC").Limit(1).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest session: %w", err)
	}
	var state model.SessionState
	if err := json.Unmarshal(row.Data, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", row.SessionID, err)
	}
	return &state, nil
}

// List returns every stored session's filename, newest first.
func (s *BunStore) List(ctx context.Context) ([]string, error) {
	var rows []sessionRow
	err := s.db.NewSelect().Model(&rows).Column("filename").OrderExpr("updated_at DESC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Filename
	}
	return names, nil
}

// Delete removes a session by id or filename.
func (s *BunStore) Delete(ctx context.Context, filename string) error {
	_, err := s.db.NewDelete().
		Model((*sessionRow)(nil)).
		Where("session_id = ? OR filename = ?", filename, filename).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", filename, err)
	}
	return nil
}
