package sourcebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dan-solli/sourcebook/pkg/content"
	"github.com/dan-solli/sourcebook/pkg/document"
	"github.com/dan-solli/sourcebook/pkg/key"
	"github.com/dan-solli/sourcebook/pkg/migrate"
	"github.com/dan-solli/sourcebook/pkg/store"
)

// CollectionCharacters stores characters indexed by primary identity.
const CollectionCharacters = "characters"

// ErrCharacterNotFound is returned when no character has the requested id.
var ErrCharacterNotFound = errors.New("character not found")

// CharacterSummary is the listing view of a stored character.
type CharacterSummary struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Primary   key.SourceKey `json:"primary"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// SaveCharacter validates ch and stores a copy. A missing id is assigned a
// new UUID; CreatedAt is kept when set and UpdatedAt is always refreshed.
// The stored copy is returned.
func (s *Sourcebook) SaveCharacter(ctx context.Context, ch *content.Character) (*content.Character, error) {
	if err := document.ValidateCharacter(ch); err != nil {
		return nil, err
	}
	out := ch.Clone()
	now := time.Now().UTC()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now

	if err := s.putCharacter(ctx, out); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("character saved",
			slog.String("character", out.ID),
			slog.String("source_key", out.Dependencies.Primary.String()))
	}
	return out, nil
}

// ImportCharacter decodes a character document and saves it.
func (s *Sourcebook) ImportCharacter(ctx context.Context, r io.Reader, f document.Format) (*content.Character, error) {
	ch, err := document.DecodeCharacter(r, f)
	if err != nil {
		return nil, err
	}
	return s.SaveCharacter(ctx, ch)
}

func (s *Sourcebook) putCharacter(ctx context.Context, ch *content.Character) error {
	body, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode character %s: %w", ch.ID, err)
	}
	rec := &store.Record{
		Key:       ch.ID,
		Index:     ch.Dependencies.Primary.ID(),
		Value:     body,
		UpdatedAt: ch.UpdatedAt,
	}
	if err := s.kv.Put(ctx, CollectionCharacters, rec); err != nil {
		return fmt.Errorf("store character %s: %w", ch.ID, err)
	}
	return nil
}

// GetCharacter loads a stored character.
func (s *Sourcebook) GetCharacter(ctx context.Context, id string) (*content.Character, error) {
	rec, err := s.kv.Get(ctx, CollectionCharacters, id)
	if err != nil {
		return nil, fmt.Errorf("get character %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrCharacterNotFound, id)
	}
	return decodeCharacter(rec)
}

func decodeCharacter(rec *store.Record) (*content.Character, error) {
	var ch content.Character
	if err := json.Unmarshal(rec.Value, &ch); err != nil {
		return nil, fmt.Errorf("decode character %s: %w", rec.Key, err)
	}
	return &ch, nil
}

// ListCharacters summarizes every stored character ordered by id.
func (s *Sourcebook) ListCharacters(ctx context.Context) ([]CharacterSummary, error) {
	recs, err := s.kv.All(ctx, CollectionCharacters)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	return summarize(recs)
}

// CharactersUsing summarizes characters whose primary dependency is a
// version of identity sourceID.
func (s *Sourcebook) CharactersUsing(ctx context.Context, sourceID string) ([]CharacterSummary, error) {
	if err := key.ValidateID(sourceID); err != nil {
		return nil, err
	}
	recs, err := s.kv.ByIndex(ctx, CollectionCharacters, sourceID)
	if err != nil {
		return nil, fmt.Errorf("characters using %s: %w", sourceID, err)
	}
	return summarize(recs)
}

func summarize(recs []*store.Record) ([]CharacterSummary, error) {
	out := make([]CharacterSummary, 0, len(recs))
	for _, rec := range recs {
		ch, err := decodeCharacter(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, CharacterSummary{
			ID:        ch.ID,
			Name:      ch.Name,
			Primary:   ch.Dependencies.Primary,
			UpdatedAt: ch.UpdatedAt,
		})
	}
	return out, nil
}

// DeleteCharacter removes a stored character, reporting whether it existed.
func (s *Sourcebook) DeleteCharacter(ctx context.Context, id string) (bool, error) {
	deleted, err := s.kv.Delete(ctx, CollectionCharacters, id)
	if err != nil {
		return false, fmt.Errorf("delete character %s: %w", id, err)
	}
	return deleted, nil
}

// MigrateCharacter moves a stored character from oldKey to newKey: it loads
// the new snapshot, rewrites the character and stores the result.
func (s *Sourcebook) MigrateCharacter(ctx context.Context, id string, oldKey, newKey key.SourceKey) (ch *content.Character, report *migrate.Report, err error) {
	op := s.begin("migrate")
	op.ids["character"] = id
	op.ids["from"] = oldKey.String()
	op.ids["to"] = newKey.String()
	defer func() { s.end(ctx, op, err) }()

	fetch := newSpanTimer("fetch", op.trace)
	current, err := s.GetCharacter(ctx, id)
	if err != nil {
		fetch.finish(err, nil)
		return nil, nil, err
	}
	if !current.Dependencies.Declares(oldKey) {
		err = fmt.Errorf("%w: character %s does not depend on %s", migrate.ErrInvalidKeyPair, id, oldKey)
		fetch.finish(err, nil)
		return nil, nil, err
	}
	snap, err := s.catalog.Load(ctx, newKey)
	fetch.finish(err, nil)
	if err != nil {
		return nil, nil, err
	}

	rewrite := newSpanTimer("rewrite", op.trace)
	opts := []migrate.Option{migrate.WithMetrics(s.metricsCollector)}
	if s.logger != nil {
		opts = append(opts, migrate.WithLogger(s.logger))
	}
	migrated, report, err := migrate.Migrate(current, oldKey, newKey, snap, opts...)
	if err != nil {
		rewrite.finish(err, nil)
		return nil, nil, err
	}
	rewrite.finish(nil, map[string]int64{
		"rewritten": int64(report.Count(migrate.Rewritten)),
		"dropped":   int64(report.Count(migrate.Dropped)),
		"stale":     int64(report.Count(migrate.Stale)),
	})

	persist := newSpanTimer("persist", op.trace)
	migrated.UpdatedAt = time.Now().UTC()
	err = s.putCharacter(ctx, migrated)
	persist.finish(err, nil)
	if err != nil {
		return nil, nil, err
	}
	return migrated, report, nil
}

// UnresolvedReferences loads the dependencies of a stored character and
// lists, in document order, the path of every embedded pointer that does
// not resolve.
func (s *Sourcebook) UnresolvedReferences(ctx context.Context, id string) ([]string, error) {
	ch, err := s.GetCharacter(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.LoadDependencies(ctx, ch); err != nil {
		return nil, err
	}
	var out []string
	for _, f := range s.resolver.Unresolved(ch) {
		out = append(out, f.Path)
	}
	return out, nil
}
