// Package domain defines the orchestration entities, statuses, change events
// and repository contracts shared by flowcore services and backends.
package domain

import (
	"time"
)

// Kind identifies the type of entity managed by a repository.
type Kind string

// Built-in entity kinds. Extensions may register additional kinds.
const (
	KindScenario   Kind = "scenario"
	KindSequence   Kind = "sequence"
	KindDataNode   Kind = "data"
	KindCycle      Kind = "cycle"
	KindJob        Kind = "job"
	KindTask       Kind = "task"
	KindSubmission Kind = "submission"
)

// BuiltinKinds lists the kinds every registry must provide.
func BuiltinKinds() []Kind {
	return []Kind{KindScenario, KindSequence, KindDataNode, KindCycle, KindJob, KindTask, KindSubmission}
}

// StorageType selects where a data node keeps its value.
type StorageType string

// Supported data node storage types.
const (
	// StorageInMemory keeps values in process memory only.
	StorageInMemory StorageType = "in_memory"
	// StorageJSON serializes values as JSON documents in the blob store.
	StorageJSON StorageType = "json"
)

// Frequency describes the recurrence of a cycle.
type Frequency string

// Cycle frequencies.
const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Scenario groups the tasks, sequences and data nodes of one business case.
type Scenario struct {
	Base
	ConfigID              string      `json:"config_id"`
	TaskIDs               []string    `json:"task_ids"`
	SequenceIDs           []string    `json:"sequence_ids"`
	AdditionalDataNodeIDs []string    `json:"additional_data_node_ids"`
	CycleID               *string     `json:"cycle_id"`
	CreationDate          time.Time   `json:"creation_date"`
	IsPrimary             bool        `json:"is_primary"`
	Tags                  []string    `json:"tags"`
	Properties            *Properties `json:"properties"`
}

// Sequence is an ordered subset of a scenario's tasks.
type Sequence struct {
	Base
	OwnerID    string      `json:"owner_id"`
	TaskIDs    []string    `json:"task_ids"`
	Properties *Properties `json:"properties"`
}

// Task binds a registered function to its input and output data nodes.
type Task struct {
	Base
	ConfigID   string      `json:"config_id"`
	OwnerID    string      `json:"owner_id"`
	InputIDs   []string    `json:"input_ids"`
	OutputIDs  []string    `json:"output_ids"`
	Function   string      `json:"function"`
	Skippable  bool        `json:"skippable"`
	Properties *Properties `json:"properties"`
}

// Job tracks one execution of a task.
type Job struct {
	Base
	TaskID         string    `json:"task_id"`
	SubmitID       string    `json:"submit_id"`
	SubmitEntityID string    `json:"submit_entity_id"`
	Status         Status    `json:"status"`
	Stacktrace     []string  `json:"stacktrace"`
	Force          bool      `json:"force"`
	CreationDate   time.Time `json:"creation_date"`
}

// DataNode holds a value read or written by tasks along with its edit history.
type DataNode struct {
	Base
	ConfigID             string      `json:"config_id"`
	OwnerID              string      `json:"owner_id"`
	Storage              StorageType `json:"storage"`
	Edits                []Edit      `json:"edits"`
	LastEditDate         *time.Time  `json:"last_edit_date"`
	EditorID             *string     `json:"editor_id"`
	EditorExpirationDate *time.Time  `json:"editor_expiration_date"`
	EditInProgress       bool        `json:"edit_in_progress"`
	Properties           *Properties `json:"properties"`
}

// Cycle is a time window scenarios can be attached to.
type Cycle struct {
	Base
	Frequency    Frequency   `json:"frequency"`
	StartDate    time.Time   `json:"start_date"`
	EndDate      time.Time   `json:"end_date"`
	CreationDate time.Time   `json:"creation_date"`
	Properties   *Properties `json:"properties"`
}

// Submission records one submit call and the jobs it produced.
type Submission struct {
	Base
	TargetID     string           `json:"entity_id"`
	TargetKind   Kind             `json:"entity_kind"`
	JobIDs       []string         `json:"job_ids"`
	Status       SubmissionStatus `json:"status"`
	CreationDate time.Time        `json:"creation_date"`
	Properties   *Properties      `json:"properties"`
}

var (
	_ Entity = (*Scenario)(nil)
	_ Entity = (*Sequence)(nil)
	_ Entity = (*Task)(nil)
	_ Entity = (*Job)(nil)
	_ Entity = (*DataNode)(nil)
	_ Entity = (*Cycle)(nil)
	_ Entity = (*Submission)(nil)
)

// EntityKind implements Entity.
func (*Scenario) EntityKind() Kind { return KindScenario }

// EntityKind implements Entity.
func (*Sequence) EntityKind() Kind { return KindSequence }

// EntityKind implements Entity.
func (*Task) EntityKind() Kind { return KindTask }

// EntityKind implements Entity.
func (*Job) EntityKind() Kind { return KindJob }

// EntityKind implements Entity.
func (*DataNode) EntityKind() Kind { return KindDataNode }

// EntityKind implements Entity.
func (*Cycle) EntityKind() Kind { return KindCycle }

// EntityKind implements Entity.
func (*Submission) EntityKind() Kind { return KindSubmission }

// Props implements Entity.
func (s *Scenario) Props() *Properties { return s.Properties }

// Props implements Entity.
func (s *Sequence) Props() *Properties { return s.Properties }

// Props implements Entity.
func (t *Task) Props() *Properties { return t.Properties }

// Props returns nil: jobs carry no property container.
func (*Job) Props() *Properties { return nil }

// Props implements Entity.
func (d *DataNode) Props() *Properties { return d.Properties }

// Props implements Entity.
func (c *Cycle) Props() *Properties { return c.Properties }

// Props implements Entity.
func (s *Submission) Props() *Properties { return s.Properties }

// CloneEntity implements Entity.
func (s *Scenario) CloneEntity() Entity {
	cp := *s
	cp.Base = s.Base.clone()
	cp.TaskIDs = cloneStrings(s.TaskIDs)
	cp.SequenceIDs = cloneStrings(s.SequenceIDs)
	cp.AdditionalDataNodeIDs = cloneStrings(s.AdditionalDataNodeIDs)
	cp.CycleID = clonePtr(s.CycleID)
	cp.Tags = cloneStrings(s.Tags)
	cp.Properties = s.Properties.Clone()
	return &cp
}

// CloneEntity implements Entity.
func (s *Sequence) CloneEntity() Entity {
	cp := *s
	cp.Base = s.Base.clone()
	cp.TaskIDs = cloneStrings(s.TaskIDs)
	cp.Properties = s.Properties.Clone()
	return &cp
}

// CloneEntity implements Entity.
func (t *Task) CloneEntity() Entity {
	cp := *t
	cp.Base = t.Base.clone()
	cp.InputIDs = cloneStrings(t.InputIDs)
	cp.OutputIDs = cloneStrings(t.OutputIDs)
	cp.Properties = t.Properties.Clone()
	return &cp
}

// CloneEntity implements Entity.
func (j *Job) CloneEntity() Entity {
	cp := *j
	cp.Base = j.Base.clone()
	cp.Stacktrace = cloneStrings(j.Stacktrace)
	return &cp
}

// CloneEntity implements Entity.
func (d *DataNode) CloneEntity() Entity {
	cp := *d
	cp.Base = d.Base.clone()
	if d.Edits != nil {
		cp.Edits = make([]Edit, len(d.Edits))
		for i, e := range d.Edits {
			cp.Edits[i] = e.Clone()
		}
	}
	cp.LastEditDate = clonePtr(d.LastEditDate)
	cp.EditorID = clonePtr(d.EditorID)
	cp.EditorExpirationDate = clonePtr(d.EditorExpirationDate)
	cp.Properties = d.Properties.Clone()
	return &cp
}

// CloneEntity implements Entity.
func (c *Cycle) CloneEntity() Entity {
	cp := *c
	cp.Base = c.Base.clone()
	cp.Properties = c.Properties.Clone()
	return &cp
}

// CloneEntity implements Entity.
func (s *Submission) CloneEntity() Entity {
	cp := *s
	cp.Base = s.Base.clone()
	cp.JobIDs = cloneStrings(s.JobIDs)
	cp.Properties = s.Properties.Clone()
	return &cp
}

// TrackEdit appends an edit record and moves LastEditDate to its timestamp.
func (d *DataNode) TrackEdit(edit Edit) {
	d.Edits = append(d.Edits, edit.Clone())
	if ts, ok := edit.Timestamp(); ok {
		d.LastEditDate = &ts
	}
}

// LockEdit marks the node as being written by editorID until expiration.
// An empty editorID locks without recording an editor.
func (d *DataNode) LockEdit(editorID string, expiration *time.Time) {
	if editorID != "" {
		d.EditorID = &editorID
	} else {
		d.EditorID = nil
	}
	d.EditorExpirationDate = clonePtr(expiration)
	d.EditInProgress = true
}

// UnlockEdit clears the editor lock fields.
func (d *DataNode) UnlockEdit() {
	d.EditorID = nil
	d.EditorExpirationDate = nil
	d.EditInProgress = false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
