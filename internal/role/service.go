package role

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
)

const (
	maxNameLen   = 100
	maxPromptLen = 8000
	maxTags      = 20
)

type Service struct {
	repo      *Repo
	templates *Templates
}

func NewService(repo *Repo, templates *Templates) *Service {
	return &Service{repo: repo, templates: templates}
}

func (s *Service) Templates() *Templates { return s.templates }

// List merges the built-in templates (no id) with persisted roles visible to viewerID.
func (s *Service) List(ctx context.Context, viewerID uint64) ([]Summary, error) {
	roles, err := s.repo.ListVisible(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	tpls := s.templates.List()
	out := make([]Summary, 0, len(tpls)+len(roles))
	for _, t := range tpls {
		out = append(out, summaryOfTemplate(t))
	}
	for _, r := range roles {
		out = append(out, summaryOfRole(r))
	}
	return out, nil
}

// Search matches q case-insensitively against names and descriptions.
func (s *Service) Search(ctx context.Context, viewerID uint64, q string) ([]Summary, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return s.List(ctx, viewerID)
	}
	lower := strings.ToLower(q)

	var out []Summary
	for _, t := range s.templates.List() {
		if strings.Contains(strings.ToLower(t.Key), lower) ||
			strings.Contains(strings.ToLower(t.DisplayName), lower) ||
			strings.Contains(strings.ToLower(t.Description), lower) {
			out = append(out, summaryOfTemplate(t))
		}
	}
	roles, err := s.repo.SearchVisible(ctx, viewerID, q, 50)
	if err != nil {
		return nil, fmt.Errorf("search roles: %w", err)
	}
	for _, r := range roles {
		out = append(out, summaryOfRole(r))
	}
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

func (s *Service) Template(key string) (Template, error) {
	t, ok := s.templates.Get(key)
	if !ok {
		return Template{}, apperr.NotFound("template not found")
	}
	return t, nil
}

// CreateFromTemplate persists a copy of the named template. Template names are
// unique role names, so an existing instance is returned instead of a duplicate;
// created reports whether a new row was written.
func (s *Service) CreateFromTemplate(ctx context.Context, key string) (role *Role, created bool, err error) {
	t, ok := s.templates.Get(key)
	if !ok {
		return nil, false, apperr.NotFound("template not found")
	}

	existing, err := s.repo.GetByName(ctx, t.Key)
	switch {
	case err == nil:
		if !existing.IsActive {
			if err := s.repo.Update(ctx, existing.ID, map[string]any{"is_active": true}); err != nil {
				return nil, false, err
			}
			existing.IsActive = true
		}
		return existing, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, err
	}

	tplKey := t.Key
	role = &Role{
		Name:         t.Key,
		DisplayName:  t.DisplayName,
		Description:  t.Description,
		SystemPrompt: t.SystemPrompt,
		AvatarURL:    t.AvatarURL,
		Category:     t.Category,
		Tags:         datatypes.JSONSlice[string](t.Tags),
		Voice:        datatypes.NewJSONType(t.Voice),
		TemplateKey:  &tplKey,
		IsPublic:     true,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, role); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost a race with a concurrent instantiation
			existing, getErr := s.repo.GetByName(ctx, t.Key)
			if getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create role from template: %w", err)
	}
	return role, true, nil
}

type CreateInput struct {
	Name         string
	DisplayName  string
	Description  string
	SystemPrompt string
	AvatarURL    string
	Category     string
	Tags         []string
	Voice        Voice
	IsPublic     *bool
}

func (s *Service) Create(ctx context.Context, creatorID uint64, in CreateInput) (*Role, error) {
	name := strings.TrimSpace(in.Name)
	prompt := strings.TrimSpace(in.SystemPrompt)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if s.templates.Has(name) {
		return nil, apperr.Conflict("role name is reserved for a built-in character")
	}
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}
	if len(in.Tags) > maxTags {
		return nil, apperr.Validation("too many tags")
	}

	public := true
	if in.IsPublic != nil {
		public = *in.IsPublic
	}
	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = name
	}
	owner := creatorID
	role := &Role{
		Name:         name,
		DisplayName:  display,
		Description:  strings.TrimSpace(in.Description),
		SystemPrompt: prompt,
		AvatarURL:    strings.TrimSpace(in.AvatarURL),
		Category:     strings.TrimSpace(in.Category),
		Tags:         datatypes.JSONSlice[string](cleanTags(in.Tags)),
		Voice:        datatypes.NewJSONType(in.Voice),
		IsPublic:     public,
		IsActive:     true,
		CreatedBy:    &owner,
	}
	if err := s.repo.Create(ctx, role); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("role name already taken")
		}
		return nil, fmt.Errorf("create role: %w", err)
	}
	return role, nil
}

// Get returns a role visible to viewerID. Hidden roles look like missing ones.
func (s *Service) Get(ctx context.Context, viewerID, id uint64) (*Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("role not found")
		}
		return nil, err
	}
	if !role.VisibleTo(viewerID) {
		return nil, apperr.NotFound("role not found")
	}
	return role, nil
}

// ForChat returns an active role viewerID may chat with.
func (s *Service) ForChat(ctx context.Context, viewerID, id uint64) (*Role, error) {
	role, err := s.Get(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}
	if !role.IsActive {
		return nil, apperr.NotFound("role not found")
	}
	return role, nil
}

// ResolveByKey finds a persisted role by name, instantiating a built-in template on first use.
func (s *Service) ResolveByKey(ctx context.Context, viewerID uint64, key string) (*Role, error) {
	key = strings.TrimSpace(key)
	if s.templates.Has(key) {
		role, _, err := s.CreateFromTemplate(ctx, key)
		return role, err
	}
	role, err := s.repo.GetByName(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("role not found")
		}
		return nil, err
	}
	if !role.IsActive || !role.VisibleTo(viewerID) {
		return nil, apperr.NotFound("role not found")
	}
	return role, nil
}

type UpdateInput struct {
	DisplayName  *string
	Description  *string
	SystemPrompt *string
	AvatarURL    *string
	Category     *string
	Tags         *[]string
	Voice        *Voice
	IsPublic     *bool
}

// Update changes a role owned by viewerID.
func (s *Service) Update(ctx context.Context, viewerID, id uint64, in UpdateInput) (*Role, error) {
	role, err := s.owned(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if in.DisplayName != nil {
		v := strings.TrimSpace(*in.DisplayName)
		if len([]rune(v)) > maxNameLen {
			return nil, apperr.Validation("display_name too long")
		}
		fields["display_name"] = v
	}
	if in.Description != nil {
		fields["description"] = strings.TrimSpace(*in.Description)
	}
	if in.SystemPrompt != nil {
		v := strings.TrimSpace(*in.SystemPrompt)
		if err := validatePrompt(v); err != nil {
			return nil, err
		}
		fields["system_prompt"] = v
	}
	if in.AvatarURL != nil {
		fields["avatar_url"] = strings.TrimSpace(*in.AvatarURL)
	}
	if in.Category != nil {
		fields["category"] = strings.TrimSpace(*in.Category)
	}
	if in.Tags != nil {
		if len(*in.Tags) > maxTags {
			return nil, apperr.Validation("too many tags")
		}
		fields["tags"] = datatypes.JSONSlice[string](cleanTags(*in.Tags))
	}
	if in.Voice != nil {
		fields["voice"] = datatypes.NewJSONType(*in.Voice)
	}
	if in.IsPublic != nil {
		fields["is_public"] = *in.IsPublic
	}
	if len(fields) == 0 {
		return role, nil
	}
	if err := s.repo.Update(ctx, role.ID, fields); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	return s.repo.GetByID(ctx, role.ID)
}

// Disable soft-deletes a role owned by viewerID.
func (s *Service) Disable(ctx context.Context, viewerID, id uint64) error {
	role, err := s.owned(ctx, viewerID, id)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, role.ID, map[string]any{"is_active": false})
}

func (s *Service) owned(ctx context.Context, viewerID, id uint64) (*Role, error) {
	role, err := s.Get(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}
	if !role.OwnedBy(viewerID) {
		return nil, apperr.Unauthorized("only the creator can modify this role")
	}
	return role, nil
}

func validateName(name string) error {
	if name == "" {
		return apperr.Validation("name required")
	}
	if len([]rune(name)) > maxNameLen {
		return apperr.Validation("name too long")
	}
	return nil
}

func validatePrompt(prompt string) error {
	if prompt == "" {
		return apperr.Validation("system_prompt required")
	}
	if len([]rune(prompt)) > maxPromptLen {
		return apperr.Validation("system_prompt too long")
	}
	return nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
