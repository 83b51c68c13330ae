// Package filtering implements the Filtering Service (spec §4.2): it decides
// which discovered items are new versus already stored, while unconditionally
// recording every discovered external id for the stale-detection state
// machine before any skip policy is applied.
package filtering

import (
	"context"

	"github.com/rescuedogs/aggregator/internal/domain/animals"
)

// Recorder marks an external id as observed in the current scrape session.
// Satisfied by *session.Session; kept as a narrow interface here so this
// package never imports the session package.
type Recorder interface {
	RecordFound(externalID string)
}

// ExistingURLLister resolves the set of adoption_url values already stored
// for an organization. Satisfied by animals.Repository.
type ExistingURLLister interface {
	ExistingAdoptionURLs(ctx context.Context, organizationID int64) (map[string]struct{}, error)
}

// Service holds the per-scrape filtering policy and the statistics it
// accumulates while applying it.
type Service struct {
	lister             ExistingURLLister
	organizationID     int64
	skipExistingAnimals bool

	totalBeforeFilter int
	totalSkipped      int
}

// New returns a Service scoped to one organization's scrape.
func New(lister ExistingURLLister, organizationID int64, skipExistingAnimals bool) *Service {
	return &Service{
		lister:              lister,
		organizationID:       organizationID,
		skipExistingAnimals: skipExistingAnimals,
	}
}

// RecordAllFound marks every item with a non-empty ExternalID as seen via
// recorder. It must run before FilterNew — the framework enforces this
// ordering (spec §4.4 step 5), not this method.
func (s *Service) RecordAllFound(recorder Recorder, items []animals.RawAnimal) int {
	recorded := 0
	for _, item := range items {
		if item.ExternalID == "" {
			continue
		}
		recorder.RecordFound(item.ExternalID)
		recorded++
	}
	return recorded
}

// FilterNew returns items unchanged when skip_existing_animals is off. When
// it is on, it returns only items whose AdoptionURL is not already stored for
// the organization, and records before/skipped counts for the scrape log.
func (s *Service) FilterNew(ctx context.Context, items []animals.RawAnimal) ([]animals.RawAnimal, error) {
	if !s.skipExistingAnimals {
		return items, nil
	}

	existing, err := s.lister.ExistingAdoptionURLs(ctx, s.organizationID)
	if err != nil {
		return nil, err
	}

	s.totalBeforeFilter = len(items)

	if len(existing) == 0 {
		s.totalSkipped = 0
		return items, nil
	}

	filtered := make([]animals.RawAnimal, 0, len(items))
	for _, item := range items {
		if _, ok := existing[item.AdoptionURL]; ok {
			continue
		}
		filtered = append(filtered, item)
	}
	s.totalSkipped = len(items) - len(filtered)
	return filtered, nil
}

// EffectiveFoundCount reports the pre-filter count when skipping is on (so
// the scrape log shows discovery volume, not processing volume), otherwise
// the length of the post-filter items.
func (s *Service) EffectiveFoundCount(postFilterItems []animals.RawAnimal) int {
	if s.skipExistingAnimals && s.totalBeforeFilter > 0 {
		return s.totalBeforeFilter
	}
	return len(postFilterItems)
}

// TotalBeforeFilter is the count observed before any skip filter was applied,
// 0 if FilterNew has not run yet or skipping is off.
func (s *Service) TotalBeforeFilter() int { return s.totalBeforeFilter }

// TotalSkipped is the number of items dropped as already-stored.
func (s *Service) TotalSkipped() int { return s.totalSkipped }
