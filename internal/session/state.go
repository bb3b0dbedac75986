package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/archai/internal/conversation"
	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/stage"
	"github.com/kalambet/archai/internal/storage"
)

// state is the Manager's mutable copy of one session. It is only touched
// with Manager.mu held.
type state struct {
	id        string
	stage     stage.Stage
	record    requirements.Record
	history   conversation.History
	notice    string
	inFlight  bool
	createdAt time.Time
	updatedAt time.Time

	// persisted counts turns already written; dirty names image kinds that
	// changed since the last write.
	persisted int
	dirty     map[string]bool
}

func (s *state) busy() bool {
	return s.inFlight || stage.IsPipeline(s.stage)
}

func (s *state) snapshot() Snapshot {
	return Snapshot{
		ID:        s.id,
		Stage:     s.stage,
		Record:    s.record,
		Turns:     s.history.Turns(),
		Busy:      s.busy(),
		Notice:    s.notice,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *state) say(text string, rhetorical bool) {
	if text == "" {
		return
	}
	s.history = s.history.Append(conversation.Turn{
		Role:       conversation.Assistant,
		Text:       text,
		Rhetorical: rhetorical,
	})
}

func (s *state) markImage(kind string) {
	if s.dirty == nil {
		s.dirty = make(map[string]bool)
	}
	s.dirty[kind] = true
}

// rows converts the unsaved part of s into storage rows.
func (s *state) rows() (storage.Session, []storage.Turn, []storage.Image, error) {
	recJSON, err := json.Marshal(s.record)
	if err != nil {
		return storage.Session{}, nil, nil, fmt.Errorf("encoding requirements: %w", err)
	}
	sess := storage.Session{
		ID:         s.id,
		Stage:      string(s.stage),
		RecordJSON: string(recJSON),
		Notice:     s.notice,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}

	all := s.history.Turns()
	var turns []storage.Turn
	for i := s.persisted; i < len(all); i++ {
		t := all[i]
		turns = append(turns, storage.Turn{
			SessionID:  s.id,
			Seq:        i,
			Role:       string(t.Role),
			Text:       t.Text,
			Rhetorical: t.Rhetorical,
			CreatedAt:  t.CreatedAt,
		})
	}

	var images []storage.Image
	for kind := range s.dirty {
		img := s.image(kind)
		if img == nil {
			continue
		}
		images = append(images, storage.Image{SessionID: s.id, Kind: kind, MIMEType: img.MIMEType, Data: img.Data})
	}
	return sess, turns, images, nil
}

func (s *state) image(kind string) *requirements.Image {
	switch kind {
	case storage.ImageInspiration:
		return s.record.Inspiration()
	case storage.ImageFloorPlan:
		return s.record.FloorPlan()
	case storage.ImageInterior:
		return s.record.Interior()
	}
	return nil
}

// restore rebuilds a state from its stored rows.
func restore(row storage.Session, turns []storage.Turn, images []storage.Image) (*state, error) {
	st, ok := stage.Parse(row.Stage)
	if !ok {
		return nil, fmt.Errorf("session %s: unknown stage %q", row.ID, row.Stage)
	}

	var rec requirements.Record
	if err := json.Unmarshal([]byte(row.RecordJSON), &rec); err != nil {
		return nil, fmt.Errorf("session %s: decoding requirements: %w", row.ID, err)
	}
	for _, img := range images {
		ri := requirements.Image{MIMEType: img.MIMEType, Data: img.Data}
		switch img.Kind {
		case storage.ImageInspiration:
			rec = rec.WithInspiration(ri)
		case storage.ImageFloorPlan:
			rec = rec.WithFloorPlan(ri)
		case storage.ImageInterior:
			rec = rec.WithInterior(ri)
		default:
			return nil, fmt.Errorf("session %s: unknown image kind %q", row.ID, img.Kind)
		}
	}

	hist := make([]conversation.Turn, 0, len(turns))
	for _, t := range turns {
		hist = append(hist, conversation.Turn{
			Role:       conversation.Role(t.Role),
			Text:       t.Text,
			Rhetorical: t.Rhetorical,
			CreatedAt:  t.CreatedAt,
		})
	}

	return &state{
		id:        row.ID,
		stage:     st,
		record:    rec,
		history:   conversation.NewHistory(hist),
		notice:    row.Notice,
		createdAt: row.CreatedAt,
		updatedAt: row.UpdatedAt,
		persisted: len(hist),
	}, nil
}
