package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"ares/internal/config"
	"ares/internal/domain"
	"ares/internal/events"
	"ares/internal/logging"
	"ares/internal/repo"
	"ares/internal/workflow"
)

// Engine runs mission mutations. Each one commits the new record, its audit
// event and its side effects in a single transaction.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *log.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *log.Logger {
	return logging.Or(e.Logger)
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

// Link is the portal address of a mission's edit page.
func (e Engine) Link(loc domain.Location, name string) string {
	return fmt.Sprintf("http://%s/mission/%s/%s/edit", e.config().Portal.Endpoint, loc, name)
}

// CustomersFor derives the customers of a script from its name prefix.
// SIT scripts serve every configured customer.
func (e Engine) CustomersFor(name string) []string {
	prefix := strings.ToUpper(strings.TrimSpace(strings.SplitN(name, "-", 2)[0]))
	if prefix != "SIT" {
		return []string{prefix}
	}
	var out []string
	for _, c := range e.config().Customers {
		if c = strings.TrimSpace(c); c != "" && !strings.EqualFold(c, "SIT") {
			out = append(out, c)
		}
	}
	return out
}

// Customers lists the configured customers.
func (e Engine) Customers() []string {
	return append([]string(nil), e.config().Customers...)
}

func (e Engine) enqueue(ctx context.Context, tx *sql.Tx, m domain.Mission, effs []workflow.Effect, now time.Time) error {
	ts := now.UTC().Format(time.RFC3339)
	for _, eff := range effs {
		eff.Mission = m
		data, err := json.Marshal(eff)
		if err != nil {
			return fmt.Errorf("encode %s effect: %w", eff.Kind, err)
		}
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		if err := e.Repo.EnqueueEffectTx(ctx, tx, domain.SideEffect{
			ID:        id.String(),
			Mission:   m.ScriptName,
			Kind:      string(eff.Kind),
			Payload:   string(data),
			CreatedAt: ts,
			UpdatedAt: ts,
		}); err != nil {
			return err
		}
	}
	return nil
}

func checkRevision(stored domain.Mission, payload domain.Mission) error {
	if payload.Status != "" && payload.Status != stored.Status {
		return fmt.Errorf("mission %s is %s, not %s: %w", stored.ScriptName, stored.Status, payload.Status, repo.ErrConflict)
	}
	if payload.Revision != 0 && payload.Revision != stored.Revision {
		return fmt.Errorf("mission %s is at revision %d, not %d: %w", stored.ScriptName, stored.Revision, payload.Revision, repo.ErrConflict)
	}
	return nil
}

func notFound(loc domain.Location, name string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		if loc == "" {
			return fmt.Errorf("mission %s: %w", name, err)
		}
		return fmt.Errorf("mission %s in %s store: %w", name, loc, err)
	}
	return err
}
