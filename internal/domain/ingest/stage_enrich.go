package ingest

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const fuzzyEventMatchRatio = 0.85

// levenshteinRatio returns a similarity ratio in [0,1]: 1 for identical
// strings, 0 when the edit distance equals the longer string's length.
func levenshteinRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// resolveEvent finds or creates the Event a chunk's inferred title belongs
// to: exact match on normalized title when years agree (or the existing
// event has no year), else a fuzzy match within the same year, else a new
// planned Event when the inferred title is non-empty.
func resolveEvent(ctx context.Context, deps Dependencies, inferred InferredEvent) (*Event, error) {
	normalized := normalizeEventTitle(inferred.Title)
	if normalized == "" {
		return nil, nil
	}

	if ev, found, err := deps.Events.FindByNormalizedTitle(ctx, normalized, inferred.Year); err == nil && found {
		return &ev, nil
	}
	if ev, found, err := deps.Events.FindFuzzy(ctx, normalized, inferred.Year, fuzzyEventMatchRatio); err == nil && found {
		return &ev, nil
	}

	ev := Event{
		Title:      inferred.Title,
		Year:       inferred.Year,
		Department: inferred.Department,
		Status:     EventStatusPlanned,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if inferred.Date != nil {
		ev.StartDate = inferred.Date
	}
	if err := deps.Events.Create(ctx, &ev); err != nil {
		return nil, Temporary("event create failed", err)
	}
	return &ev, nil
}

// runEnrichStage infers the event each parent chunk belongs to, propagates
// related_event_id/inferred_event_title to its children, and assigns the
// access_level and time_decay_date every chunk inherits from the document.
// time_decay_date is the start date of the first resolved event that has
// one, else the document's drive edit time, else the current time.
func runEnrichStage(ctx context.Context, deps Dependencies, doc *Document, parents, children []DocumentChunk) error {
	accessLevel := accessLevelFor(doc.Category, doc.MeetingSubtype, doc.AccessLevel)
	decayDate := doc.TimeDecayDate
	if decayDate.IsZero() {
		decayDate = time.Now()
	}

	childrenByParent := make(map[string][]*DocumentChunk, len(parents))
	for i := range children {
		c := &children[i]
		if c.ParentChunkID == nil {
			continue
		}
		key := c.ParentChunkID.String()
		childrenByParent[key] = append(childrenByParent[key], c)
	}

	var eventDate *time.Time
	for i := range parents {
		p := &parents[i]

		inferred, err := deps.Vision.InferEvent(ctx, p.Content)
		if err != nil {
			return Temporary("event inference failed", err)
		}

		ev, err := resolveEvent(ctx, deps, inferred)
		if err != nil {
			return err
		}

		p.InferredEventTitle = inferred.Title
		p.AccessLevel = accessLevel
		if ev != nil {
			p.RelatedEventID = &ev.ID
			if eventDate == nil && ev.StartDate != nil {
				eventDate = ev.StartDate
			}
			if err := deps.Events.ReconcileParentChunks(ctx, ev.ID); err != nil {
				deps.Logger.Warn("event parent chunk reconciliation failed", "event_id", ev.ID, "error", err)
			}
		}

		for _, c := range childrenByParent[p.ID.String()] {
			c.InferredEventTitle = inferred.Title
			c.RelatedEventID = p.RelatedEventID
			c.AccessLevel = accessLevel
		}
	}

	if eventDate != nil {
		decayDate = *eventDate
	}
	doc.TimeDecayDate = decayDate
	doc.AccessLevel = accessLevel

	all := make([]DocumentChunk, 0, len(parents)+len(children))
	all = append(all, parents...)
	all = append(all, children...)
	if err := deps.Chunks.UpdateEnrichment(ctx, all); err != nil {
		return Temporary("chunk enrichment write failed", err)
	}

	doc.CurrentStep = 6
	return nil
}
