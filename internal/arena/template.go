package arena

import (
	"context"
	"fmt"
	"time"

	"rankmine/pkg/domain"
)

// SaveTemplate captures the loaded arena's shape (scoring config, contestant
// names, round titles) as a reusable template.
func (s *Service) SaveTemplate(ctx context.Context, name string) (domain.Template, error) {
	start := s.nowFn()
	tpl, err := s.saveTemplate(ctx, name)
	s.observe(ctx, "save_template", start, err)
	return tpl, err
}

func (s *Service) saveTemplate(ctx context.Context, name string) (domain.Template, error) {
	if name == "" {
		return domain.Template{}, fmt.Errorf("template name required")
	}
	s.mu.RLock()
	st := s.arena
	s.mu.RUnlock()
	if st == nil {
		return domain.Template{}, fmt.Errorf("no arena loaded")
	}
	now := s.nowFn()
	tpl := domain.Template{
		ID:        s.idFn(),
		Name:      name,
		Scoring:   st.competition.Scoring,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, c := range st.contestants {
		tpl.Contestants = append(tpl.Contestants, c.Name)
	}
	for i, r := range st.rounds {
		tpl.Rounds = append(tpl.Rounds, domain.TemplateRound{Title: r.Title, OrderIndex: i})
	}
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutTemplate(tpl)
	})
	if err != nil {
		return domain.Template{}, err
	}
	s.log.Info("saved template", "id", tpl.ID, "name", tpl.Name)
	return tpl, nil
}

// InstantiateTemplate creates a brand new competition from a template: fresh
// IDs throughout, contestants and rounds in template order, and the full
// empty entry grid, all in one transaction. An empty title keeps the template
// name.
func (s *Service) InstantiateTemplate(ctx context.Context, templateID, title string) (domain.Competition, error) {
	start := s.nowFn()
	comp, err := s.instantiateTemplate(ctx, templateID, title)
	s.observe(ctx, "instantiate_template", start, err)
	return comp, err
}

func (s *Service) instantiateTemplate(ctx context.Context, templateID, title string) (domain.Competition, error) {
	tpl, ok, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return domain.Competition{}, err
	}
	if !ok {
		return domain.Competition{}, domain.ErrNotFound{Entity: domain.EntityTemplate, ID: templateID}
	}
	if title == "" {
		title = tpl.Name
	}
	comp, contestants, rounds, entries, err := s.materializeTemplate(tpl, title)
	if err != nil {
		return domain.Competition{}, err
	}
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.PutCompetition(comp); err != nil {
			return err
		}
		for _, c := range contestants {
			if err := tx.PutContestant(c); err != nil {
				return err
			}
		}
		for _, r := range rounds {
			if err := tx.PutRound(r); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if err := tx.PutEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Competition{}, err
	}
	s.log.Info("instantiated template", "template", templateID, "competition", comp.ID)
	return comp, nil
}

// materializeTemplate mints a competition, its contestants, rounds, and empty
// entry grid from a template.
func (s *Service) materializeTemplate(tpl domain.Template, title string) (domain.Competition, []domain.Contestant, []domain.Round, []domain.Entry, error) {
	scoring := tpl.Scoring
	if (scoring == domain.ScoringConfig{}) {
		scoring = domain.DefaultScoring()
	}
	if err := scoring.Validate(); err != nil {
		return domain.Competition{}, nil, nil, nil, err
	}
	now := s.nowFn()
	comp := domain.Competition{
		ID:        s.idFn(),
		Title:     title,
		Scoring:   scoring,
		UI:        domain.DefaultUIPreferences(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	contestants := make([]domain.Contestant, 0, len(tpl.Contestants))
	for i, name := range tpl.Contestants {
		idx := i
		contestants = append(contestants, domain.Contestant{
			ID:            s.idFn(),
			CompetitionID: comp.ID,
			Name:          name,
			OrderIndex:    &idx,
			CreatedAt:     now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	rounds := make([]domain.Round, 0, len(tpl.Rounds))
	for i, tr := range tpl.Rounds {
		rounds = append(rounds, domain.Round{
			ID:            s.idFn(),
			CompetitionID: comp.ID,
			Title:         tr.Title,
			OrderIndex:    i,
			CreatedAt:     now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	var entries []domain.Entry
	for _, r := range rounds {
		for _, c := range contestants {
			e, err := domain.EmptyEntry(comp.ID, r.ID, c.ID, now)
			if err != nil {
				return domain.Competition{}, nil, nil, nil, err
			}
			entries = append(entries, e)
		}
	}
	return comp, contestants, rounds, entries, nil
}

// ListTemplates returns all saved templates, most recently updated first.
func (s *Service) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	return s.store.ListTemplates(ctx)
}

// DeleteTemplate removes a saved template.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteTemplate(id)
	})
}

// StarterTemplateName is the name of the built-in seed template.
const StarterTemplateName = "AI Image Models Battle"

// EnsureStarterTemplate seeds the built-in image-model shootout template on
// first run. It is a no-op when a template with that name already exists.
func (s *Service) EnsureStarterTemplate(ctx context.Context) (domain.Template, error) {
	existing, err := s.store.ListTemplates(ctx)
	if err != nil {
		return domain.Template{}, err
	}
	for _, tpl := range existing {
		if tpl.Name == StarterTemplateName {
			return tpl, nil
		}
	}
	now := s.nowFn()
	tpl := domain.Template{
		ID:      s.idFn(),
		Name:    StarterTemplateName,
		Scoring: domain.DefaultScoring(),
		Contestants: []string{
			"ChatGPT",
			"Gemini",
			"Flux",
			"Grok",
			"Dreamina",
		},
		Rounds: []domain.TemplateRound{
			{Title: "A minimalist 2D logo for a coffee shop featuring a geometric owl", OrderIndex: 0},
			{Title: "A cinematic shot of a dragon breathing fire inside a crumbling cathedral", OrderIndex: 1},
			{Title: "A product photo of a smartwatch on a reflective surface with neon lighting", OrderIndex: 2},
			{Title: "A cozy isometric room illustration, warm lighting, lots of plants", OrderIndex: 3},
			{Title: "A sci-fi character portrait, cyberpunk, shallow depth of field", OrderIndex: 4},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutTemplate(tpl)
	})
	if err != nil {
		return domain.Template{}, err
	}
	s.log.Info("seeded starter template", "id", tpl.ID)
	return tpl, nil
}
