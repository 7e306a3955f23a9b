package feed

import (
	"fmt"
	"sync"

	"github.com/brettboylen/forum-feed/models"
)

// FilterStore holds the sort and filter configuration of the feed
type FilterStore interface {
	Get() models.FilterConfig
	Set(cfg models.FilterConfig) error
	// Subscribe registers fn to be called with the new configuration after every change
	Subscribe(fn func(models.FilterConfig)) (unsubscribe func())
	Reset()
}

// MemoryFilterStore is an in-process FilterStore; it starts from the defaults and is never persisted
type MemoryFilterStore struct {
	mutex       sync.RWMutex
	cfg         models.FilterConfig
	subscribers map[int]func(models.FilterConfig)
	nextID      int
}

// NewMemoryFilterStore creates a filter store holding the default configuration
func NewMemoryFilterStore() *MemoryFilterStore {
	return &MemoryFilterStore{
		cfg:         models.DefaultFilterConfig(),
		subscribers: make(map[int]func(models.FilterConfig)),
	}
}

// Get returns a copy of the current configuration
func (s *MemoryFilterStore) Get() models.FilterConfig {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.cfg.Clone()
}

// Set replaces the configuration after validating it
func (s *MemoryFilterStore) Set(cfg models.FilterConfig) error {
	if err := ValidateFilterConfig(cfg); err != nil {
		return err
	}
	cfg.SelectedTags = uniqueNonEmpty(cfg.SelectedTags)
	s.update(func(models.FilterConfig) models.FilterConfig { return cfg })
	return nil
}

func (s *MemoryFilterStore) SetSortBy(sortBy models.SortBy) error {
	if !sortBy.Valid() {
		return fmt.Errorf("%w: sortBy %q", ErrInvalidSort, sortBy)
	}
	s.update(func(cfg models.FilterConfig) models.FilterConfig {
		cfg.SortBy = sortBy
		return cfg
	})
	return nil
}

func (s *MemoryFilterStore) SetSortOrder(order models.SortOrder) error {
	if !order.Valid() {
		return fmt.Errorf("%w: sortOrder %q", ErrInvalidSort, order)
	}
	s.update(func(cfg models.FilterConfig) models.FilterConfig {
		cfg.SortOrder = order
		return cfg
	})
	return nil
}

// ToggleTag selects tag if it is not selected and deselects it otherwise
func (s *MemoryFilterStore) ToggleTag(tag string) error {
	if !models.IsKnownLabel(tag) {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, tag)
	}
	s.update(func(cfg models.FilterConfig) models.FilterConfig {
		if containsID(cfg.SelectedTags, tag) {
			tags := make([]string, 0, len(cfg.SelectedTags))
			for _, t := range cfg.SelectedTags {
				if t != tag {
					tags = append(tags, t)
				}
			}
			cfg.SelectedTags = tags
		} else {
			cfg.SelectedTags = append(cfg.SelectedTags, tag)
		}
		return cfg
	})
	return nil
}

// Reset restores the default configuration
func (s *MemoryFilterStore) Reset() {
	s.update(func(models.FilterConfig) models.FilterConfig {
		return models.DefaultFilterConfig()
	})
}

func (s *MemoryFilterStore) Subscribe(fn func(models.FilterConfig)) func() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn

	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		delete(s.subscribers, id)
	}
}

// update applies change to a private copy and notifies subscribers outside the lock
func (s *MemoryFilterStore) update(change func(models.FilterConfig) models.FilterConfig) {
	s.mutex.Lock()
	s.cfg = change(s.cfg.Clone()).Clone()
	cfg := s.cfg.Clone()
	subscribers := make([]func(models.FilterConfig), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mutex.Unlock()

	for _, fn := range subscribers {
		fn(cfg.Clone())
	}
}

// ValidateFilterConfig checks the sort fields and that every tag is a known label
func ValidateFilterConfig(cfg models.FilterConfig) error {
	if !cfg.SortBy.Valid() {
		return fmt.Errorf("%w: sortBy %q", ErrInvalidSort, cfg.SortBy)
	}
	if !cfg.SortOrder.Valid() {
		return fmt.Errorf("%w: sortOrder %q", ErrInvalidSort, cfg.SortOrder)
	}
	for _, tag := range cfg.SelectedTags {
		if !models.IsKnownLabel(tag) {
			return fmt.Errorf("%w: %q", ErrUnknownLabel, tag)
		}
	}
	return nil
}
