// Package chain owns the ordered clip chain: the records produced by
// successive generation attempts and the currently selected input image.
// The Store is the single writer; everything else reads copies.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound          = errors.New("clip record not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// contextWindow is how many recent done clips feed the narrative context.
const contextWindow = 2

// continuityInstruction is appended after the current scene description so
// the provider stitches the new clip onto the previous one.
const continuityInstruction = "Continue directly from the previous scene, keeping the same characters, setting, and visual style."

// Store is the single source of truth for the clip chain. All mutation goes
// through it; callers receive copies of records, never internal pointers.
type Store struct {
	mu         sync.Mutex
	records    []*ClipRecord
	inputImage string

	archive Archive
	release func(ClipRecord)
	logger  *slog.Logger
}

// NewStore creates a Store. archive may be nil (no journal); release may be
// nil (no external resources to free on reset).
func NewStore(archive Archive, release func(ClipRecord), logger *slog.Logger) *Store {
	if archive == nil {
		archive = NoopArchive{}
	}
	return &Store{
		archive: archive,
		release: release,
		logger:  logger,
	}
}

// SetInputImage selects the image the next generation attempt starts from.
func (s *Store) SetInputImage(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputImage = ref
}

// InputImage returns the currently selected input image reference.
func (s *Store) InputImage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputImage
}

// Append creates a new in-flight clip record at the end of the chain and
// returns its id. Any prompt enrichment is the caller's responsibility and
// must be computed before calling Append.
func (s *Store) Append(ctx context.Context, inputImageRef, promptText string) (string, error) {
	now := time.Now().UTC()
	rec := &ClipRecord{
		ID:            NewID(),
		InputImageRef: inputImageRef,
		PromptText:    promptText,
		Status:        StatusInFlight,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	snapshot := *rec
	s.mu.Unlock()

	if err := s.archive.RecordAppended(ctx, snapshot); err != nil {
		s.logger.Warn("chain journal append failed", "clip_id", rec.ID, "error", err)
	}

	return rec.ID, nil
}

// Patch merges the given fields into the named record. It returns
// ErrNotFound if the id is absent (including after a Reset) and
// ErrInvalidTransition if the patch would move status backward.
func (s *Store) Patch(ctx context.Context, id string, fields PatchFields) error {
	s.mu.Lock()
	rec := s.find(id)
	if rec == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if fields.Status != nil && !canAdvance(rec.Status, *fields.Status) {
		from := rec.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, *fields.Status)
	}

	if fields.JobID != nil {
		rec.JobID = *fields.JobID
	}
	if fields.Status != nil {
		rec.Status = *fields.Status
	}
	if fields.OutputVideoRef != nil {
		rec.OutputVideoRef = *fields.OutputVideoRef
	}
	if fields.ContinuationFrameRef != nil {
		rec.ContinuationFrameRef = *fields.ContinuationFrameRef
	}
	if fields.Error != nil {
		rec.Error = *fields.Error
	}
	rec.UpdatedAt = time.Now().UTC()
	snapshot := *rec
	s.mu.Unlock()

	if err := s.archive.RecordPatched(ctx, snapshot); err != nil {
		s.logger.Warn("chain journal patch failed", "clip_id", id, "error", err)
	}

	return nil
}

// Get returns a copy of the named record, or nil if absent.
func (s *Store) Get(id string) *ClipRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.find(id)
	if rec == nil {
		return nil
	}
	cp := *rec
	return &cp
}

// Records returns a copy of the whole chain in append order.
func (s *Store) Records() []ClipRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ClipRecord, len(s.records))
	for i, rec := range s.records {
		out[i] = *rec
	}
	return out
}

// LastGoodClip returns the most recent record whose status is done, or nil.
// Failed and in-flight records are skipped so a failure never breaks
// continuity for the clips before it.
func (s *Store) LastGoodClip() *ClipRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Status == StatusDone {
			cp := *s.records[i]
			return &cp
		}
	}
	return nil
}

// NarrativeContext enriches a raw prompt with the prompts of the most recent
// done clips, framed by how far back they sit, and appends a continuity
// instruction. With no done clips the prompt is returned unchanged.
func (s *Store) NarrativeContext(promptText string) string {
	s.mu.Lock()
	var recent []string // most recent done first
	for i := len(s.records) - 1; i >= 0 && len(recent) < contextWindow; i-- {
		if s.records[i].Status == StatusDone {
			recent = append(recent, s.records[i].PromptText)
		}
	}
	s.mu.Unlock()

	if len(recent) == 0 {
		return promptText
	}

	var b strings.Builder
	if len(recent) > 1 {
		b.WriteString("Two scenes ago: ")
		b.WriteString(recent[1])
		b.WriteString("\n")
	}
	b.WriteString("Previous scene: ")
	b.WriteString(recent[0])
	b.WriteString("\n")
	b.WriteString("Current scene: ")
	b.WriteString(promptText)
	b.WriteString("\n")
	b.WriteString(continuityInstruction)
	return b.String()
}

// Reset clears the chain, releases any external resources the records
// reference, and clears the input image selection.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	cleared := s.records
	s.records = nil
	s.inputImage = ""
	s.mu.Unlock()

	if s.release != nil {
		for _, rec := range cleared {
			s.release(*rec)
		}
	}

	if err := s.archive.Cleared(ctx); err != nil {
		s.logger.Warn("chain journal clear failed", "error", err)
	}

	s.logger.Info("chain reset", "records_cleared", len(cleared))
	return nil
}

// find must be called with the mutex held.
func (s *Store) find(id string) *ClipRecord {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}
