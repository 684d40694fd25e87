package session

import (
	"time"

	"github.com/sylas-dev/sylas/internal/procedure"
	"github.com/sylas-dev/sylas/internal/runner"
)

// SnapshotVersion is bumped whenever SessionDTO's shape changes in a way
// that needs migration logic on load (spec.md §3: "an explicit DTO ...
// so forward- and backward-compatible migrations are possible").
const SnapshotVersion = 1

// Snapshot is the persisted, language-neutral DTO spec.md §3 and §6
// require: sessions, their procedure state, last-known per-runner
// session ids, and the issue→repository routing cache. It is never the
// Session struct itself — Session carries unexported runtime fields
// (the live Supervisor, its mutex) that cannot and should not survive a
// restart.
type Snapshot struct {
	Version        int                  `json:"version"`
	SavedAt        time.Time            `json:"saved_at"`
	Sessions       []SessionDTO         `json:"sessions"`
	IssueRepoCache map[string]string    `json:"issue_repo_cache"`
}

// HistoryEntryDTO mirrors procedure.HistoryEntry.
type HistoryEntryDTO struct {
	SubroutineName  string    `json:"subroutine_name"`
	CompletedAt     time.Time `json:"completed_at"`
	RunnerSessionID string    `json:"runner_session_id"`
	RunnerType      string    `json:"runner_type"`
	Result          string    `json:"result,omitempty"`
}

// ProcedureStateDTO mirrors procedure.State.
type ProcedureStateDTO struct {
	ProcedureName       string            `json:"procedure_name"`
	CurrentIndex        int               `json:"current_index"`
	History             []HistoryEntryDTO `json:"history"`
	ValidationActive    bool              `json:"validation_active,omitempty"`
	ValidationIteration int               `json:"validation_iteration,omitempty"`
}

// SessionDTO is the persisted projection of a Session.
type SessionDTO struct {
	ExternalSessionID string            `json:"external_session_id"`
	RunnerSessionIDs  map[string]string `json:"runner_session_ids"`

	TrackerID  string `json:"tracker_id"`
	OrgID      string `json:"org_id"`
	WorkItemID string `json:"work_item_id"`
	Identifier string `json:"identifier"`

	WorkspacePath string   `json:"workspace_path"`
	RepositoryID  string   `json:"repository_id"`
	RunnerType    string   `json:"runner_type"`
	Model         string   `json:"model"`
	Labels        []string `json:"labels"`

	Status    string            `json:"status"`
	Procedure ProcedureStateDTO `json:"procedure"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToDTO projects s into its persisted shape. Caller must hold s.mu (or
// be certain no handler is concurrently mutating s).
func (s *Session) ToDTO() SessionDTO {
	dto := SessionDTO{
		ExternalSessionID: s.ExternalSessionID,
		RunnerSessionIDs:  make(map[string]string, len(s.RunnerSessionIDs)),
		TrackerID:         s.Issue.TrackerID,
		OrgID:             s.Issue.OrgID,
		WorkItemID:        s.Issue.WorkItemID,
		Identifier:        s.Issue.Identifier,
		WorkspacePath:     s.WorkspacePath,
		RepositoryID:      s.RepositoryID,
		RunnerType:        string(s.RunnerType),
		Model:             s.Model,
		Labels:            append([]string(nil), s.Labels...),
		Status:            string(s.Status),
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
	for rt, id := range s.RunnerSessionIDs {
		dto.RunnerSessionIDs[string(rt)] = id
	}
	if s.Procedure != nil {
		dto.Procedure = ProcedureStateDTO{
			ProcedureName: s.Procedure.ProcedureName,
			CurrentIndex:  s.Procedure.CurrentIndex,
		}
		for _, h := range s.Procedure.History {
			dto.Procedure.History = append(dto.Procedure.History, HistoryEntryDTO{
				SubroutineName:  h.SubroutineName,
				CompletedAt:     h.CompletedAt,
				RunnerSessionID: h.RunnerSessionID,
				RunnerType:      string(h.RunnerType),
				Result:          h.Result,
			})
		}
		if s.Procedure.Validation != nil {
			dto.Procedure.ValidationActive = s.Procedure.Validation.Active
			dto.Procedure.ValidationIteration = s.Procedure.Validation.Iteration
		}
	}
	return dto
}

// FromDTO rebuilds a Session from its persisted projection. The runtime
// Supervisor is never restored — the manager replaying a snapshot starts
// with every session runtime-less, matching spec.md's round-trip law
// ("modulo timestamps" and, implicitly, live process handles).
func FromDTO(dto SessionDTO) *Session {
	s := &Session{
		ExternalSessionID: dto.ExternalSessionID,
		RunnerSessionIDs:  procedure.RunnerSessionIDs{},
		Issue: IssueContext{
			TrackerID:  dto.TrackerID,
			OrgID:      dto.OrgID,
			WorkItemID: dto.WorkItemID,
			Identifier: dto.Identifier,
		},
		WorkspacePath: dto.WorkspacePath,
		RepositoryID:  dto.RepositoryID,
		RunnerType:    runner.Type(dto.RunnerType),
		Model:         dto.Model,
		Labels:        append([]string(nil), dto.Labels...),
		Status:        Status(dto.Status),
		CreatedAt:     dto.CreatedAt,
		UpdatedAt:     dto.UpdatedAt,
	}
	for rt, id := range dto.RunnerSessionIDs {
		s.RunnerSessionIDs[procedure.RunnerType(rt)] = id
	}
	state := &procedure.State{
		ProcedureName: dto.Procedure.ProcedureName,
		CurrentIndex:  dto.Procedure.CurrentIndex,
	}
	for _, h := range dto.Procedure.History {
		state.History = append(state.History, procedure.HistoryEntry{
			SubroutineName:  h.SubroutineName,
			CompletedAt:     h.CompletedAt,
			RunnerSessionID: h.RunnerSessionID,
			RunnerType:      procedure.RunnerType(h.RunnerType),
			Result:          h.Result,
		})
	}
	if dto.Procedure.ValidationActive {
		state.Validation = &procedure.ValidationSubstate{Active: true, Iteration: dto.Procedure.ValidationIteration}
	}
	s.Procedure = state
	return s
}

// Persister is the narrow interface the Manager depends on to save and
// load a Snapshot; internal/persistence implements it against the
// filesystem, keeping this package free of any storage-format concerns
// (spec.md's ownership rule: the manager drives persistence, it doesn't
// implement the format).
type Persister interface {
	Save(Snapshot) error
	Load() (Snapshot, error)
}
