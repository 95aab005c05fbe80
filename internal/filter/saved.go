package filter

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Scopes name the record collections a saved filter can target.
const (
	ScopeTrades    = "trades"
	ScopeNews      = "news"
	ScopeWatchlist = "watchlist"
)

// SavedFilter is a named snapshot of a State. Only LastUsedAt changes after creation.
type SavedFilter struct {
	ID         string    `json:"id" validate:"required,uuid"`
	Name       string    `json:"name" validate:"required,max=64"`
	Scope      string    `json:"scope" validate:"required,oneof=trades news watchlist"`
	State      State     `json:"state" validate:"-"`
	Sort       SortSpec  `json:"sort" validate:"-"`
	Notify     bool      `json:"notify"`
	CreatedAt  time.Time `json:"created_at" validate:"required"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// NewSavedFilter snapshots state under name. The state is deep-copied.
func NewSavedFilter(name, scope string, state State, sort SortSpec, notify bool, now time.Time) (SavedFilter, error) {
	sf := SavedFilter{
		ID:         uuid.NewString(),
		Name:       name,
		Scope:      scope,
		State:      state.Clone(),
		Sort:       sort,
		Notify:     notify,
		CreatedAt:  now.UTC(),
		LastUsedAt: now.UTC(),
	}
	if err := sf.Validate(); err != nil {
		return SavedFilter{}, err
	}
	return sf, nil
}

// Validate checks the saved filter's required fields.
func (s SavedFilter) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid saved filter: %w", err)
	}
	return nil
}

// Touch returns a copy with LastUsedAt set to now.
func (s SavedFilter) Touch(now time.Time) SavedFilter {
	out := s
	out.State = s.State.Clone()
	out.LastUsedAt = now.UTC()
	return out
}

// Snapshot returns an independent copy of the saved state for the caller to edit.
func (s SavedFilter) Snapshot() State { return s.State.Clone() }
