// Package engine enforces the agency's business rules on top of the
// repository layer.
package engine

import (
	"context"
	"database/sql"
	"errors"

	"clowder/internal/breeds"
	"clowder/internal/config"
	"clowder/internal/domain"
	"clowder/internal/repo"
)

// ConflictError is a business-rule violation surfaced to the caller.
type ConflictError struct {
	Detail string
}

func (e ConflictError) Error() string { return e.Detail }

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Breeds breeds.Validator
	Config *config.Config
}

func New(db *sql.DB, cfg *config.Config, validator breeds.Validator) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Breeds: validator,
		Config: cfg,
	}
}

// AgentOptions are the updatable agent fields. The current mission
// reference is managed only through AssignMission.
type AgentOptions struct {
	Name            string
	ExperienceYears int
	Breed           string
	Salary          float64
}

func (o AgentOptions) validate() error {
	if o.Name == "" {
		return errors.New("name is required")
	}
	if o.Breed == "" {
		return errors.New("breed is required")
	}
	if o.ExperienceYears < 0 {
		return errors.New("experience_years must be non-negative")
	}
	if o.Salary < 0 {
		return errors.New("salary must be non-negative")
	}
	return nil
}

// CreateAgent validates the breed against the external catalog and
// persists a new agent with no current mission.
func (e Engine) CreateAgent(ctx context.Context, opts AgentOptions) (domain.Agent, error) {
	if err := opts.validate(); err != nil {
		return domain.Agent{}, err
	}
	if err := e.Breeds.Validate(ctx, opts.Breed); err != nil {
		return domain.Agent{}, err
	}
	return e.Repo.InsertAgent(ctx, domain.Agent{
		Name:            opts.Name,
		ExperienceYears: opts.ExperienceYears,
		Breed:           opts.Breed,
		Salary:          opts.Salary,
	})
}

func (e Engine) GetAgent(ctx context.Context, id int64) (domain.Agent, error) {
	return e.Repo.GetAgent(ctx, id)
}

// ListAgents pages agents by creation order.
func (e Engine) ListAgents(ctx context.Context, skip, limit int) ([]domain.Agent, error) {
	skip, limit = e.normalizePage(skip, limit)
	return e.Repo.ListAgents(ctx, skip, limit)
}

// UpdateAgent re-validates the breed and overwrites the whitelisted
// fields. Breed validation runs before the existence check, so an
// unrecognized breed is reported even for an unknown id.
func (e Engine) UpdateAgent(ctx context.Context, id int64, opts AgentOptions) (domain.Agent, error) {
	if err := opts.validate(); err != nil {
		return domain.Agent{}, err
	}
	if err := e.Breeds.Validate(ctx, opts.Breed); err != nil {
		return domain.Agent{}, err
	}
	if err := e.Repo.UpdateAgentProfile(ctx, domain.Agent{
		ID:              id,
		Name:            opts.Name,
		ExperienceYears: opts.ExperienceYears,
		Breed:           opts.Breed,
		Salary:          opts.Salary,
	}); err != nil {
		return domain.Agent{}, err
	}
	return e.Repo.GetAgent(ctx, id)
}

// DeleteAgent removes an agent unconditionally, even while it holds a
// mission reference; the mission itself is untouched.
func (e Engine) DeleteAgent(ctx context.Context, id int64) error {
	return e.Repo.DeleteAgent(ctx, id)
}

// AssignMission gives an unassigned agent a not-yet-completed mission.
// Existence is checked before state so a missing id yields not-found
// rather than a conflict. The final write is conditional on the
// current mission still being unset, which closes the window between
// the check and the write under concurrent assignment attempts.
func (e Engine) AssignMission(ctx context.Context, agentID, missionID int64) (domain.Agent, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agent{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAgentTx(ctx, tx, agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	if a.CurrentMissionID != nil {
		return domain.Agent{}, ConflictError{Detail: "agent already has an active mission"}
	}
	m, err := e.Repo.GetMissionTx(ctx, tx, missionID)
	if err != nil {
		return domain.Agent{}, err
	}
	if m.IsCompleted {
		return domain.Agent{}, ConflictError{Detail: "cannot assign a completed mission"}
	}
	updated, err := e.Repo.AssignMissionTx(ctx, tx, agentID, missionID)
	if err != nil {
		return domain.Agent{}, err
	}
	if !updated {
		return domain.Agent{}, ConflictError{Detail: "agent already has an active mission"}
	}
	if err := tx.Commit(); err != nil {
		return domain.Agent{}, err
	}
	a.CurrentMissionID = &missionID
	return a, nil
}

// TargetSpec describes a target supplied at mission creation.
type TargetSpec struct {
	Name        string
	Country     string
	Notes       string
	IsCompleted bool
}

// MissionOptions are parameters for creating a mission.
type MissionOptions struct {
	Description string
	IsCompleted bool
	Targets     []TargetSpec
}

// CreateMission persists the mission and all supplied targets in a
// single transaction; a failure leaves no partial mission behind.
func (e Engine) CreateMission(ctx context.Context, opts MissionOptions) (domain.Mission, error) {
	if opts.Description == "" {
		return domain.Mission{}, errors.New("description is required")
	}
	for _, t := range opts.Targets {
		if t.Name == "" {
			return domain.Mission{}, errors.New("target name is required")
		}
		if t.Country == "" {
			return domain.Mission{}, errors.New("target country is required")
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	m := domain.Mission{
		Description: opts.Description,
		IsCompleted: opts.IsCompleted,
	}
	id, err := e.Repo.InsertMissionTx(ctx, tx, m)
	if err != nil {
		return domain.Mission{}, err
	}
	m.ID = id
	for _, spec := range opts.Targets {
		t := domain.Target{
			MissionID:   id,
			Name:        spec.Name,
			Country:     spec.Country,
			Notes:       spec.Notes,
			IsCompleted: spec.IsCompleted,
		}
		tid, err := e.Repo.InsertTargetTx(ctx, tx, t)
		if err != nil {
			return domain.Mission{}, err
		}
		t.ID = tid
		m.Targets = append(m.Targets, t)
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	if m.Targets == nil {
		m.Targets = []domain.Target{}
	}
	m.AssignedAgents = []domain.Agent{}
	return m, nil
}

// GetMission returns the mission with its targets and a freshly
// recomputed set of agents currently referencing it.
func (e Engine) GetMission(ctx context.Context, id int64) (domain.Mission, error) {
	m, err := e.Repo.GetMission(ctx, id)
	if err != nil {
		return domain.Mission{}, err
	}
	return e.hydrateMission(ctx, m)
}

// ListMissions pages missions by creation order, hydrating each.
func (e Engine) ListMissions(ctx context.Context, skip, limit int) ([]domain.Mission, error) {
	skip, limit = e.normalizePage(skip, limit)
	missions, err := e.Repo.ListMissions(ctx, skip, limit)
	if err != nil {
		return nil, err
	}
	for i := range missions {
		missions[i], err = e.hydrateMission(ctx, missions[i])
		if err != nil {
			return nil, err
		}
	}
	return missions, nil
}

// UpdateMission overwrites description and completion flag. A mission
// that is already completed can no longer be changed; completing it is
// the last permitted update.
func (e Engine) UpdateMission(ctx context.Context, id int64, description string, isCompleted bool) (domain.Mission, error) {
	if description == "" {
		return domain.Mission{}, errors.New("description is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMissionTx(ctx, tx, id)
	if err != nil {
		return domain.Mission{}, err
	}
	if m.IsCompleted {
		return domain.Mission{}, ConflictError{Detail: "cannot update a completed mission"}
	}
	m.Description = description
	m.IsCompleted = isCompleted
	if err := e.Repo.UpdateMissionTx(ctx, tx, m); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return e.hydrateMission(ctx, m)
}

// DeleteMission removes a mission that no agent currently references,
// cascading the deletion of its targets.
func (e Engine) DeleteMission(ctx context.Context, id int64) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetMissionTx(ctx, tx, id); err != nil {
		return err
	}
	n, err := e.Repo.CountAgentsByMissionTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ConflictError{Detail: "cannot delete a mission assigned to an agent"}
	}
	if err := e.Repo.DeleteMissionTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) hydrateMission(ctx context.Context, m domain.Mission) (domain.Mission, error) {
	targets, err := e.Repo.ListTargets(ctx, m.ID)
	if err != nil {
		return domain.Mission{}, err
	}
	agents, err := e.Repo.ListAgentsByMission(ctx, m.ID)
	if err != nil {
		return domain.Mission{}, err
	}
	if targets == nil {
		targets = []domain.Target{}
	}
	if agents == nil {
		agents = []domain.Agent{}
	}
	m.Targets = targets
	m.AssignedAgents = agents
	return m, nil
}

// normalizePage clamps negative skip and substitutes the configured
// default for a negative limit. An explicit limit of 0 is honored and
// yields an empty page; limit bounds the rows returned, it is never a
// request for "all".
func (e Engine) normalizePage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit < 0 {
		limit = 10
		if e.Config != nil && e.Config.Listing.DefaultLimit > 0 {
			limit = e.Config.Listing.DefaultLimit
		}
	}
	return skip, limit
}
