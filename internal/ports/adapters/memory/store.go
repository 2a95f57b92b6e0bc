package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/domain/lifecycle"
	"github.com/forPelevin/clipscout/internal/types"
)

// Op names a store operation that can be made to fail.
type Op string

const (
	OpGetSource      Op = "get_source"
	OpUpdateStatus   Op = "update_status"
	OpInsertClips    Op = "insert_clips"
	OpIncrementUsage Op = "increment_usage"
	OpTranscript     Op = "transcript"
	OpUpdateClip     Op = "update_clip"
)

type usageKey struct {
	user   uuid.UUID
	period string
}

// Store keeps everything in maps. It backs STORE_DRIVER=memory and doubles
// as the store fake in tests.
type Store struct {
	mu sync.RWMutex

	now func() time.Time

	sources     map[uuid.UUID]types.Source
	transcripts map[uuid.UUID]types.Transcript
	clips       map[uuid.UUID][]types.Clip
	profiles    map[uuid.UUID]types.Profile
	usage       map[usageKey]int
	history     map[uuid.UUID][]types.SourceStatus
	faults      map[Op]error
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		now:         time.Now,
		sources:     make(map[uuid.UUID]types.Source),
		transcripts: make(map[uuid.UUID]types.Transcript),
		clips:       make(map[uuid.UUID][]types.Clip),
		profiles:    make(map[uuid.UUID]types.Profile),
		usage:       make(map[usageKey]int),
		history:     make(map[uuid.UUID][]types.SourceStatus),
		faults:      make(map[Op]error),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Fail makes every later call of op return err. A nil err clears it.
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) CreateSource(_ context.Context, src types.Source, tr types.Transcript) (types.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	if _, exists := s.sources[src.ID]; exists {
		return types.Source{}, apperr.Newf(apperr.CodeConflict, "source %s already exists", src.ID)
	}
	src.Status = types.SourcePending
	if !tr.Empty() {
		src.Status = types.SourceReady
		s.transcripts[src.ID] = tr
	}
	now := s.now().UTC()
	src.CreatedAt, src.UpdatedAt = now, now
	s.sources[src.ID] = src
	s.history[src.ID] = []types.SourceStatus{src.Status}
	return src, nil
}

func (s *Store) GetSource(_ context.Context, id uuid.UUID) (types.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.faults[OpGetSource]; err != nil {
		return types.Source{}, err
	}
	src, ok := s.sources[id]
	if !ok {
		return types.Source{}, apperr.Newf(apperr.CodeNotFound, "source %s not found", id)
	}
	return src, nil
}

func (s *Store) UpdateSourceStatus(_ context.Context, id uuid.UUID, to types.SourceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.faults[OpUpdateStatus]; err != nil {
		return err
	}
	src, ok := s.sources[id]
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "source %s not found", id)
	}
	if err := lifecycle.Validate(src.Status, to); err != nil {
		return err
	}
	src.Status = to
	src.UpdatedAt = s.now().UTC()
	s.sources[id] = src
	s.history[id] = append(s.history[id], to)
	return nil
}

func (s *Store) Transcript(_ context.Context, sourceID uuid.UUID) (types.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.faults[OpTranscript]; err != nil {
		return types.Transcript{}, err
	}
	if _, ok := s.sources[sourceID]; !ok {
		return types.Transcript{}, apperr.Newf(apperr.CodeNotFound, "source %s not found", sourceID)
	}
	return s.transcripts[sourceID], nil
}

func (s *Store) SaveTranscript(_ context.Context, sourceID uuid.UUID, tr types.Transcript, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[sourceID]
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "source %s not found", sourceID)
	}
	s.transcripts[sourceID] = tr
	if duration > 0 {
		src.DurationSeconds = duration.Seconds()
		src.UpdatedAt = s.now().UTC()
		s.sources[sourceID] = src
	}
	return nil
}

// InsertClips stores the whole batch or nothing.
func (s *Store) InsertClips(_ context.Context, clips []types.Clip) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.faults[OpInsertClips]; err != nil {
		return 0, err
	}
	for _, c := range clips {
		if _, ok := s.sources[c.SourceID]; !ok {
			return 0, apperr.Newf(apperr.CodeNotFound, "source %s not found", c.SourceID)
		}
	}
	for _, c := range clips {
		s.clips[c.SourceID] = append(s.clips[c.SourceID], c)
	}
	return len(clips), nil
}

// Clips returns the clips stored for a source in insertion order.
func (s *Store) Clips(sourceID uuid.UUID) []types.Clip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Clip(nil), s.clips[sourceID]...)
}

func (s *Store) ListClips(_ context.Context, f types.ClipFilter) ([]types.Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Clip
	for _, list := range s.clips {
		for _, c := range list {
			if f.UserID != uuid.Nil && c.UserID != f.UserID {
				continue
			}
			if f.SourceID != uuid.Nil && c.SourceID != f.SourceID {
				continue
			}
			if f.Status != "" && c.Status != f.Status {
				continue
			}
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ViralScore != out[j].ViralScore {
			return out[i].ViralScore > out[j].ViralScore
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetClip(_ context.Context, id uuid.UUID) (types.Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if src, i, ok := s.findClip(id); ok {
		return s.clips[src][i], nil
	}
	return types.Clip{}, apperr.Newf(apperr.CodeNotFound, "clip %s not found", id)
}

func (s *Store) UpdateClipStatus(_ context.Context, id uuid.UUID, to types.ClipStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.faults[OpUpdateClip]; err != nil {
		return err
	}
	src, i, ok := s.findClip(id)
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "clip %s not found", id)
	}
	if err := lifecycle.ValidateClip(s.clips[src][i].Status, to); err != nil {
		return err
	}
	s.clips[src][i].Status = to
	return nil
}

func (s *Store) DeleteClip(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, i, ok := s.findClip(id)
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "clip %s not found", id)
	}
	list := s.clips[src]
	s.clips[src] = append(list[:i:i], list[i+1:]...)
	return nil
}

// findClip expects the lock to be held.
func (s *Store) findClip(id uuid.UUID) (uuid.UUID, int, bool) {
	for src, list := range s.clips {
		for i, c := range list {
			if c.ID == id {
				return src, i, true
			}
		}
	}
	return uuid.Nil, 0, false
}

func (s *Store) IncrementUsage(_ context.Context, userID uuid.UUID, period string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.faults[OpIncrementUsage]; err != nil {
		return err
	}
	s.usage[usageKey{user: userID, period: period}] += delta
	return nil
}

func (s *Store) Usage(_ context.Context, userID uuid.UUID, period string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage[usageKey{user: userID, period: period}], nil
}

func (s *Store) UpsertProfile(_ context.Context, p types.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Plan == "" {
		p.Plan = types.PlanFree
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) GetProfile(_ context.Context, userID uuid.UUID) (types.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return types.Profile{}, apperr.Newf(apperr.CodeNotFound, "profile %s not found", userID)
	}
	return p, nil
}

// ResetStuckSources releases sources whose last status change is older than
// olderThan: analyzing goes back to ready, transcribing to error.
func (s *Store) ResetStuckSources(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := s.now().UTC()
	for id, src := range s.sources {
		if !src.UpdatedAt.Before(olderThan) {
			continue
		}
		var to types.SourceStatus
		switch src.Status {
		case types.SourceAnalyzing:
			to = types.SourceReady
		case types.SourceTranscribing:
			to = types.SourceError
		default:
			continue
		}
		src.Status = to
		src.UpdatedAt = now
		s.sources[id] = src
		s.history[id] = append(s.history[id], to)
		n++
	}
	return n, nil
}

// History lists every status a source has held, starting with its initial one.
func (s *Store) History(id uuid.UUID) []types.SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.SourceStatus(nil), s.history[id]...)
}
