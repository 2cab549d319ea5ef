package engine

import (
	"context"
	"errors"
	"sort"
	"strings"

	"ares/internal/domain"
	"ares/internal/repo"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// ListQuery selects a page of missions from one store.
type ListQuery struct {
	Location domain.Location
	Keyword  string
	Page     int
	Size     int
}

type MissionPage struct {
	Items []domain.Mission `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

// ListMissions pages through a store, most recently modified first. Released
// missions are hidden from the create store.
func (e Engine) ListMissions(ctx context.Context, q ListQuery) (MissionPage, error) {
	f := repo.MissionFilter{Location: q.Location, Keyword: strings.TrimSpace(q.Keyword)}
	if q.Location == domain.LocationCreate {
		f.ExcludeStatus = domain.StatusRelease
	}
	items, err := e.Repo.ListMissions(ctx, f)
	if err != nil {
		return MissionPage{}, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ModifiedDate > items[j].ModifiedDate
	})
	page, size := q.Page, q.Size
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	out := MissionPage{Total: len(items), Page: page, Size: size, Items: []domain.Mission{}}
	start := (page - 1) * size
	if start < len(items) {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out.Items = items[start:end]
	}
	return out, nil
}

// GetMission reads a mission. An empty location searches both stores.
func (e Engine) GetMission(ctx context.Context, loc domain.Location, name string) (domain.Mission, error) {
	m, err := e.Repo.GetMission(ctx, loc, name)
	if err != nil {
		return domain.Mission{}, notFound(loc, name, err)
	}
	return m, nil
}

type HistoryItem struct {
	Datetime string `json:"datetime"`
	domain.HistoryEntry
}

// History lists a mission's history, newest first.
func (e Engine) History(ctx context.Context, loc domain.Location, name string) ([]HistoryItem, error) {
	m, err := e.GetMission(ctx, loc, name)
	if err != nil {
		return nil, err
	}
	if len(m.History) == 0 {
		return nil, notFound(loc, name+" history", repo.ErrNotFound)
	}
	keys := m.HistoryKeys()
	out := make([]HistoryItem, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		out = append(out, HistoryItem{Datetime: keys[i], HistoryEntry: m.History[keys[i]]})
	}
	return out, nil
}

func (e Engine) Snapshots(ctx context.Context, name string) ([]domain.Snapshot, error) {
	out, err := e.Repo.ListSnapshots(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, notFound("", name+" snapshots", repo.ErrNotFound)
	}
	return out, nil
}

func (e Engine) Changelist(ctx context.Context, name string) ([]domain.ChangelistEntry, error) {
	out, err := e.Repo.ListChangelist(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, notFound("", name+" changelist", repo.ErrNotFound)
	}
	return out, nil
}

// ValidateName reports whether name is free in both stores.
func (e Engine) ValidateName(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}
	_, err := e.Repo.FindMission(ctx, name)
	if errors.Is(err, repo.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// MissionNames lists every stored mission name.
func (e Engine) MissionNames(ctx context.Context) ([]string, error) {
	items, err := e.Repo.ListMissions(ctx, repo.MissionFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, m := range items {
		out = append(out, m.ScriptName)
	}
	return out, nil
}

func (e Engine) Effects(ctx context.Context, status, mission string, limit int) ([]domain.SideEffect, error) {
	return e.Repo.ListEffects(ctx, status, mission, limit)
}

// RetryEffect requeues a failed side effect.
func (e Engine) RetryEffect(ctx context.Context, id string) error {
	return e.Repo.RetryEffect(ctx, id, e.now())
}

// AuditLog returns the newest audit events, optionally for one mission.
func (e Engine) AuditLog(ctx context.Context, mission string, limit int) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, mission, "")
}
