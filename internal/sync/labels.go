package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/model"
)

// ProbeLabelSchema decides once per session which label association shape is
// live: the id-based one is preferred, the legacy name-based one is used
// when only it is populated. An empty datastore stays undecided and each
// chat falls back individually.
func (s *Synchronizer) ProbeLabelSchema(ctx context.Context) {
	s.mu.Lock()
	if s.labels != schemaUnknown {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	decided := schemaUnknown
	rows, err := s.be.Query(ctx, backend.CollChatLabels, nil, &backend.Options{Limit: 1})
	switch {
	case err == nil && len(rows) > 0:
		decided = schemaByID
	default:
		legacy, lerr := s.be.Query(ctx, backend.CollChatTags, nil, &backend.Options{Limit: 1})
		if lerr == nil && len(legacy) > 0 {
			decided = schemaByName
		}
	}
	if decided == schemaUnknown {
		return
	}

	s.mu.Lock()
	if s.labels == schemaUnknown {
		s.labels = decided
	}
	s.mu.Unlock()
	s.logger.Info("label schema probed", zap.Bool("legacy", decided == schemaByName))
}

// fetchLabels resolves a chat's labels. The id-based association is tried
// first; on error or zero rows the legacy name-based association is
// consulted, yielding labels with the name as id and the default color.
// Sessions probed as legacy-only skip the dead id-based query.
func (s *Synchronizer) fetchLabels(ctx context.Context, chatID string) ([]model.Label, error) {
	s.mu.Lock()
	schema := s.labels
	s.mu.Unlock()

	if schema == schemaByName {
		return s.legacyLabels(ctx, chatID)
	}

	assocRows, err := s.be.Query(ctx, backend.CollChatLabels, backend.Filter{"chat_id": chatID}, nil)
	if err == nil && len(assocRows) > 0 {
		ids := make([]string, 0, len(assocRows))
		for _, r := range assocRows {
			if id := recString(r, "label_id"); id != "" {
				ids = append(ids, id)
			}
		}
		labelRows, lerr := s.be.Query(ctx, backend.CollLabels, backend.Filter{"id": ids}, nil)
		if lerr != nil {
			return nil, lerr
		}
		out := make([]model.Label, 0, len(labelRows))
		for _, lr := range labelRows {
			l := model.Label{
				ID:    recString(lr, "id"),
				Name:  recString(lr, "name"),
				Color: recString(lr, "color"),
			}
			if l.Color == "" {
				l.Color = model.DefaultLabelColor
			}
			out = append(out, l)
		}
		return out, nil
	}

	legacy, lerr := s.legacyLabels(ctx, chatID)
	if lerr != nil {
		if err != nil {
			// Both shapes failed; report the primary one.
			return nil, err
		}
		return nil, lerr
	}
	return legacy, nil
}

func (s *Synchronizer) legacyLabels(ctx context.Context, chatID string) ([]model.Label, error) {
	rows, err := s.be.Query(ctx, backend.CollChatTags, backend.Filter{"chat_id": chatID}, nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.Label, 0, len(rows))
	for _, r := range rows {
		name := recString(r, "name")
		if name == "" {
			continue
		}
		out = append(out, model.Label{ID: name, Name: name, Color: model.DefaultLabelColor})
	}
	return out, nil
}
