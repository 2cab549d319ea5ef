package server

import (
	"ares/internal/domain"
	"ares/internal/engine"
)

// Request payloads

type RescheduleRequest struct {
	Comment   string           `json:"comment"`
	Submitter string           `json:"submitter"`
	Href      string           `json:"href,omitempty"`
	Schedules domain.Schedules `json:"schedules"`
}

type RotateRequest struct {
	Comment   string `json:"comment"`
	Submitter string `json:"submitter"`
	Href      string `json:"href,omitempty"`
	TEName    string `json:"te_name"`
	Current   string `json:"current,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
	TTL     string   `json:"ttl,omitempty" example:"2h"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type NameCheckResponse struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

type CustomersResponse struct {
	Customers []string `json:"customers"`
}

type HistoryResponse struct {
	Items []engine.HistoryItem `json:"items"`
}

type SnapshotsResponse struct {
	Items []domain.Snapshot `json:"items"`
}

type ChangelistResponse struct {
	Items []domain.ChangelistEntry `json:"items"`
}

type EffectsResponse struct {
	Items []domain.SideEffect `json:"items"`
}

type EventsResponse struct {
	Items []domain.Event `json:"items"`
}

type NamesResponse struct {
	Items []string `json:"items"`
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
