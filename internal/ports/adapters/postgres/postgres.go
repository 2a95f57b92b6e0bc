// Package postgres is the pgx backed store for sources, clips, profiles and
// usage counters.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forPelevin/clipscout/internal/apperr"
	"github.com/forPelevin/clipscout/internal/domain/lifecycle"
	"github.com/forPelevin/clipscout/internal/types"
)

//go:embed schema.sql
var schema string

const pgErrForeignKeyViolation = "23503"

// Config configures the pool
type Config struct {
	URL      string
	MaxConns int32
}

// Store implements the clip and ingest stores on a pgx pool
type Store struct {
	pool *pgxpool.Pool
}

// Open parses cfg, connects and pings the database
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInput, "invalid DATABASE_URL")
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodePersistence, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.Wrap(err, apperr.CodePersistence, "ping postgres")
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool
func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// Close closes the pool
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return apperr.Wrap(err, apperr.CodePersistence, "apply schema")
	}
	return nil
}

func (s *Store) CreateSource(ctx context.Context, src types.Source, tr types.Transcript) (types.Source, error) {
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	if src.Type == "" {
		src.Type = types.SourceUpload
	}
	src.Status = types.SourcePending
	if !tr.Empty() {
		src.Status = types.SourceReady
	}
	segs, err := encodeSegments(tr.Segments)
	if err != nil {
		return types.Source{}, err
	}

	const sql = `
		insert into sources (id, user_id, title, type, url, duration_seconds, status, transcript_text, transcript_segments)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at`
	err = s.pool.QueryRow(ctx, sql,
		src.ID, src.UserID, src.Title, string(src.Type), src.URL, src.DurationSeconds, string(src.Status), tr.Text, segs,
	).Scan(&src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return types.Source{}, apperr.Wrap(err, apperr.CodePersistence, "insert source")
	}
	return src, nil
}

func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (types.Source, error) {
	const sql = `
		select id, user_id, title, type, url, duration_seconds, status, created_at, updated_at
		from sources where id = $1`
	var (
		src        types.Source
		typ, state string
	)
	err := s.pool.QueryRow(ctx, sql, id).Scan(
		&src.ID, &src.UserID, &src.Title, &typ, &src.URL, &src.DurationSeconds, &state, &src.CreatedAt, &src.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Source{}, apperr.Newf(apperr.CodeNotFound, "source %s not found", id)
	}
	if err != nil {
		return types.Source{}, apperr.Wrap(err, apperr.CodePersistence, "load source")
	}
	src.Type = types.SourceType(typ)
	src.Status = types.SourceStatus(state)
	return src, nil
}

// UpdateSourceStatus only writes when the current status may move to `to`,
// so two writers racing on the same source cannot skip a state.
func (s *Store) UpdateSourceStatus(ctx context.Context, id uuid.UUID, to types.SourceStatus) error {
	if !lifecycle.Valid(to) {
		return apperr.Newf(apperr.CodeInput, "unknown source status %q", to)
	}
	from := lifecycle.From(to)
	allowed := make([]string, 0, len(from))
	for _, st := range from {
		allowed = append(allowed, string(st))
	}

	const sql = `
		update sources set status = $2, updated_at = now()
		where id = $1 and status = any($3)`
	exec := func() (int64, error) {
		tag, err := s.pool.Exec(ctx, sql, id, string(to), allowed)
		if err != nil {
			return 0, apperr.Wrap(err, apperr.CodePersistence, "update source status")
		}
		return tag.RowsAffected(), nil
	}
	current := func() (types.SourceStatus, error) {
		cur, err := s.GetSource(ctx, id)
		return cur.Status, err
	}
	return settleStatus(id, to, exec, current)
}

// settleStatus runs the conditional update. When it matches no row the
// current status decides: an illegal move is reported as such, a legal one
// means another writer got in between, so the update is tried once more.
func settleStatus(id uuid.UUID, to types.SourceStatus, exec func() (int64, error), current func() (types.SourceStatus, error)) error {
	for attempt := 0; attempt < 2; attempt++ {
		n, err := exec()
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}
		cur, err := current()
		if err != nil {
			return err
		}
		if err := lifecycle.Validate(cur, to); err != nil {
			return err
		}
	}
	return apperr.Newf(apperr.CodeConflict, "source %s changed status concurrently", id)
}

func (s *Store) Transcript(ctx context.Context, sourceID uuid.UUID) (types.Transcript, error) {
	const sql = `select transcript_text, transcript_segments from sources where id = $1`
	var (
		tr   types.Transcript
		segs []byte
	)
	err := s.pool.QueryRow(ctx, sql, sourceID).Scan(&tr.Text, &segs)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Transcript{}, apperr.Newf(apperr.CodeNotFound, "source %s not found", sourceID)
	}
	if err != nil {
		return types.Transcript{}, apperr.Wrap(err, apperr.CodePersistence, "load transcript")
	}
	if len(segs) > 0 {
		if err := json.Unmarshal(segs, &tr.Segments); err != nil {
			return types.Transcript{}, apperr.Wrap(err, apperr.CodePersistence, "decode transcript segments")
		}
	}
	return tr, nil
}

func (s *Store) SaveTranscript(ctx context.Context, sourceID uuid.UUID, tr types.Transcript, duration time.Duration) error {
	segs, err := encodeSegments(tr.Segments)
	if err != nil {
		return err
	}
	const sql = `
		update sources set
			transcript_text = $2,
			transcript_segments = $3,
			duration_seconds = case when $4::double precision > 0 then $4 else duration_seconds end,
			updated_at = now()
		where id = $1`
	tag, err := s.pool.Exec(ctx, sql, sourceID, tr.Text, segs, duration.Seconds())
	if err != nil {
		return apperr.Wrap(err, apperr.CodePersistence, "save transcript")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.CodeNotFound, "source %s not found", sourceID)
	}
	return nil
}

var clipColumns = []string{
	"id", "source_id", "user_id", "title", "hook", "start_time", "end_time", "duration_seconds",
	"viral_score", "score_bucket", "why_viral", "caption_tiktok", "caption_instagram", "caption_youtube",
	"hashtags", "status", "created_at",
}

// InsertClips copies the batch in one statement; it lands entirely or not at all.
func (s *Store) InsertClips(ctx context.Context, clips []types.Clip) (int, error) {
	if len(clips) == 0 {
		return 0, nil
	}
	rows := pgx.CopyFromSlice(len(clips), func(i int) ([]any, error) {
		c := clips[i]
		tags := c.Hashtags
		if tags == nil {
			tags = []string{}
		}
		return []any{
			c.ID, c.SourceID, c.UserID, c.Title, c.Hook, c.StartTime, c.EndTime, c.DurationSeconds,
			c.ViralScore, string(c.ScoreBucket), c.WhyViral, c.CaptionTikTok, c.CaptionInstagram, c.CaptionYouTube,
			tags, string(c.Status), c.CreatedAt,
		}, nil
	})
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"clips"}, clipColumns, rows)
	if err != nil {
		if isSQLState(err, pgErrForeignKeyViolation) {
			return 0, apperr.Wrap(err, apperr.CodeNotFound, "clip source not found")
		}
		return 0, apperr.Wrap(err, apperr.CodePersistence, "insert clips")
	}
	return int(n), nil
}

const clipSelect = `
	select id, source_id, user_id, title, hook, start_time, end_time, duration_seconds,
	       viral_score, score_bucket, why_viral, caption_tiktok, caption_instagram, caption_youtube,
	       hashtags, status, created_at
	from clips`

// ListClips lists clips matching f, best first. Zero filter fields match
// everything.
func (s *Store) ListClips(ctx context.Context, f types.ClipFilter) ([]types.Clip, error) {
	const sql = clipSelect + `
		where ($1::uuid is null or user_id = $1)
		  and ($2::uuid is null or source_id = $2)
		  and ($3 = '' or status = $3)
		order by viral_score desc, created_at`
	rows, err := s.pool.Query(ctx, sql, nullableID(f.UserID), nullableID(f.SourceID), string(f.Status))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodePersistence, "list clips")
	}
	defer rows.Close()

	var out []types.Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodePersistence, "list clips")
	}
	return out, nil
}

func (s *Store) GetClip(ctx context.Context, id uuid.UUID) (types.Clip, error) {
	c, err := scanClip(s.pool.QueryRow(ctx, clipSelect+` where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Clip{}, apperr.Newf(apperr.CodeNotFound, "clip %s not found", id)
	}
	return c, err
}

// UpdateClipStatus moves a clip one review step forward. The write is
// conditional on the status it must come from.
func (s *Store) UpdateClipStatus(ctx context.Context, id uuid.UUID, to types.ClipStatus) error {
	from, ok := lifecycle.ClipFrom(to)
	if !ok {
		return lifecycle.ValidateClip("", to)
	}
	const sql = `update clips set status = $2 where id = $1 and status = $3`
	tag, err := s.pool.Exec(ctx, sql, id, string(to), string(from))
	if err != nil {
		return apperr.Wrap(err, apperr.CodePersistence, "update clip status")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	cur, err := s.GetClip(ctx, id)
	if err != nil {
		return err
	}
	return lifecycle.ValidateClip(cur.Status, to)
}

func (s *Store) DeleteClip(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `delete from clips where id = $1`, id)
	if err != nil {
		return apperr.Wrap(err, apperr.CodePersistence, "delete clip")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.CodeNotFound, "clip %s not found", id)
	}
	return nil
}

func scanClip(row pgx.Row) (types.Clip, error) {
	var (
		c              types.Clip
		bucket, status string
	)
	err := row.Scan(
		&c.ID, &c.SourceID, &c.UserID, &c.Title, &c.Hook, &c.StartTime, &c.EndTime, &c.DurationSeconds,
		&c.ViralScore, &bucket, &c.WhyViral, &c.CaptionTikTok, &c.CaptionInstagram, &c.CaptionYouTube,
		&c.Hashtags, &status, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Clip{}, err
	}
	if err != nil {
		return types.Clip{}, apperr.Wrap(err, apperr.CodePersistence, "scan clip")
	}
	c.ScoreBucket = types.ScoreBucket(bucket)
	c.Status = types.ClipStatus(status)
	return c, nil
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func (s *Store) IncrementUsage(ctx context.Context, userID uuid.UUID, period string, delta int) error {
	const sql = `
		insert into usage_counters (user_id, period, clips) values ($1, $2, $3)
		on conflict (user_id, period) do update set clips = usage_counters.clips + excluded.clips`
	if _, err := s.pool.Exec(ctx, sql, userID, period, delta); err != nil {
		return apperr.Wrap(err, apperr.CodePersistence, "increment usage")
	}
	return nil
}

func (s *Store) Usage(ctx context.Context, userID uuid.UUID, period string) (int, error) {
	const sql = `select clips from usage_counters where user_id = $1 and period = $2`
	var n int
	err := s.pool.QueryRow(ctx, sql, userID, period).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodePersistence, "load usage")
	}
	return n, nil
}

func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (types.Profile, error) {
	const sql = `select id, plan, brand_voice from profiles where id = $1`
	var (
		p    types.Profile
		plan string
	)
	err := s.pool.QueryRow(ctx, sql, userID).Scan(&p.ID, &plan, &p.BrandVoice)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Profile{}, apperr.Newf(apperr.CodeNotFound, "profile %s not found", userID)
	}
	if err != nil {
		return types.Profile{}, apperr.Wrap(err, apperr.CodePersistence, "load profile")
	}
	p.Plan = types.Plan(plan)
	return p, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p types.Profile) error {
	if p.Plan == "" {
		p.Plan = types.PlanFree
	}
	const sql = `
		insert into profiles (id, plan, brand_voice) values ($1, $2, $3)
		on conflict (id) do update set plan = excluded.plan, brand_voice = excluded.brand_voice`
	if _, err := s.pool.Exec(ctx, sql, p.ID, string(p.Plan), p.BrandVoice); err != nil {
		return apperr.Wrap(err, apperr.CodePersistence, "upsert profile")
	}
	return nil
}

// ResetStuckSources moves analyzing sources back to ready and transcribing
// sources to error once their last change is older than olderThan.
func (s *Store) ResetStuckSources(ctx context.Context, olderThan time.Time) (int, error) {
	const sql = `
		update sources
		set status = case status when 'analyzing' then 'ready' else 'error' end,
		    updated_at = now()
		where status in ('analyzing', 'transcribing') and updated_at < $1`
	tag, err := s.pool.Exec(ctx, sql, olderThan)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodePersistence, "reset stuck sources")
	}
	return int(tag.RowsAffected()), nil
}

func encodeSegments(segs []types.Segment) ([]byte, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(segs)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInput, "encode transcript segments")
	}
	return b, nil
}

func isSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
