package server

import (
	"clowder/internal/domain"
	"clowder/internal/engine"
)

// Request payloads

type CreateAgentRequest struct {
	Name            string  `json:"name" minLength:"1"`
	ExperienceYears int     `json:"experience_years" minimum:"0"`
	Breed           string  `json:"breed" minLength:"1"`
	Salary          float64 `json:"salary" minimum:"0"`
}

type TargetSpecRequest struct {
	Name        string `json:"name" minLength:"1"`
	Country     string `json:"country" minLength:"1"`
	Notes       string `json:"notes,omitempty"`
	IsCompleted bool   `json:"is_completed,omitempty"`
}

type CreateMissionRequest struct {
	Description string              `json:"description" minLength:"1"`
	IsCompleted bool                `json:"is_completed,omitempty"`
	Targets     []TargetSpecRequest `json:"targets"`
}

type UpdateMissionRequest struct {
	Description string `json:"description" minLength:"1"`
	IsCompleted bool   `json:"is_completed"`
}

// Response payloads

type AgentResponse struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	ExperienceYears  int     `json:"experience_years"`
	Breed            string  `json:"breed"`
	Salary           float64 `json:"salary"`
	CurrentMissionID *int64  `json:"current_mission_id,omitempty"`
}

type TargetResponse struct {
	ID          int64  `json:"id"`
	MissionID   int64  `json:"mission_id"`
	Name        string `json:"name"`
	Country     string `json:"country"`
	Notes       string `json:"notes,omitempty"`
	IsCompleted bool   `json:"is_completed"`
}

type MissionResponse struct {
	ID             int64            `json:"id"`
	Description    string           `json:"description"`
	IsCompleted    bool             `json:"is_completed"`
	Targets        []TargetResponse `json:"targets"`
	AssignedAgents []AgentResponse  `json:"assigned_agents"`
}

type DetailResponse struct {
	Detail string `json:"detail"`
}

// Conversion helpers

func agentOptions(req CreateAgentRequest) engine.AgentOptions {
	return engine.AgentOptions{
		Name:            req.Name,
		ExperienceYears: req.ExperienceYears,
		Breed:           req.Breed,
		Salary:          req.Salary,
	}
}

func missionOptions(req CreateMissionRequest) engine.MissionOptions {
	opts := engine.MissionOptions{
		Description: req.Description,
		IsCompleted: req.IsCompleted,
	}
	for _, t := range req.Targets {
		opts.Targets = append(opts.Targets, engine.TargetSpec{
			Name:        t.Name,
			Country:     t.Country,
			Notes:       t.Notes,
			IsCompleted: t.IsCompleted,
		})
	}
	return opts
}

func agentResponse(a domain.Agent) AgentResponse {
	return AgentResponse(a)
}

func targetResponse(t domain.Target) TargetResponse {
	return TargetResponse(t)
}

func missionResponse(m domain.Mission) MissionResponse {
	res := MissionResponse{
		ID:             m.ID,
		Description:    m.Description,
		IsCompleted:    m.IsCompleted,
		Targets:        []TargetResponse{},
		AssignedAgents: []AgentResponse{},
	}
	for _, t := range m.Targets {
		res.Targets = append(res.Targets, targetResponse(t))
	}
	for _, a := range m.AssignedAgents {
		res.AssignedAgents = append(res.AssignedAgents, agentResponse(a))
	}
	return res
}

func mapAgents(in []domain.Agent) []AgentResponse {
	res := make([]AgentResponse, 0, len(in))
	for _, a := range in {
		res = append(res, agentResponse(a))
	}
	return res
}

func mapMissions(in []domain.Mission) []MissionResponse {
	res := make([]MissionResponse, 0, len(in))
	for _, m := range in {
		res = append(res, missionResponse(m))
	}
	return res
}
