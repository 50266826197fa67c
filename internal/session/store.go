// Package session is the rule engine's C11: persisting and loading
// SessionState to a JSON file backend or an optional Postgres backend,
// grounded on the same save/load/list/delete surface as the original
// session manager.
package session

import (
	"context"

	"github.com/Djimon/DnDBastionManager/internal/model"
)

// Store is the persistence backend a bastion session is saved to and
// loaded from. Implementations: FileStore (JSON files on disk, the
// default) and BunStore (Postgres via bun, opt-in).
type Store interface {
	Save(ctx context.Context, state *model.SessionState) error
	Load(ctx context.Context, filename string) (*model.SessionState, error)
	LoadLatest(ctx context.Context) (*model.SessionState, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, filename string) error
}
