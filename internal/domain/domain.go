package domain

type Agent struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	ExperienceYears  int     `json:"experience_years"`
	Breed            string  `json:"breed"`
	Salary           float64 `json:"salary"`
	CurrentMissionID *int64  `json:"current_mission_id,omitempty"`
}

type Mission struct {
	ID             int64    `json:"id"`
	Description    string   `json:"description"`
	IsCompleted    bool     `json:"is_completed"`
	Targets        []Target `json:"targets"`
	AssignedAgents []Agent  `json:"assigned_agents"`
}

type Target struct {
	ID          int64  `json:"id"`
	MissionID   int64  `json:"mission_id"`
	Name        string `json:"name"`
	Country     string `json:"country"`
	Notes       string `json:"notes,omitempty"`
	IsCompleted bool   `json:"is_completed"`
}
