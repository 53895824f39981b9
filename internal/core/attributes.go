package core

import (
	"context"
	"time"

	"flowcore/pkg/domain"
)

// Job attributes.
var (
	JobStatus = Attribute[*domain.Job, domain.Status]{
		Kind: domain.KindJob, Name: "status",
		Get: func(j *domain.Job) domain.Status { return j.Status },
		Set: func(j *domain.Job, v domain.Status) { j.Status = v },
	}
	JobStacktrace = Attribute[*domain.Job, []string]{
		Kind: domain.KindJob, Name: "stacktrace",
		Get: func(j *domain.Job) []string { return append([]string{}, j.Stacktrace...) },
		Set: func(j *domain.Job, v []string) { j.Stacktrace = append([]string{}, v...) },
	}
	JobForce = Attribute[*domain.Job, bool]{
		Kind: domain.KindJob, Name: "force",
		Get: func(j *domain.Job) bool { return j.Force },
		Set: func(j *domain.Job, v bool) { j.Force = v },
	}
)

// Data node attributes.
var (
	DataNodeLastEditDate = Attribute[*domain.DataNode, *time.Time]{
		Kind: domain.KindDataNode, Name: "last_edit_date",
		Get: func(d *domain.DataNode) *time.Time { return d.LastEditDate },
		Set: func(d *domain.DataNode, v *time.Time) { d.LastEditDate = copyTime(v) },
	}
	DataNodeEditorID = Attribute[*domain.DataNode, *string]{
		Kind: domain.KindDataNode, Name: "editor_id",
		Get: func(d *domain.DataNode) *string { return d.EditorID },
		Set: func(d *domain.DataNode, v *string) { d.EditorID = copyString(v) },
	}
	DataNodeEditorExpirationDate = Attribute[*domain.DataNode, *time.Time]{
		Kind: domain.KindDataNode, Name: "editor_expiration_date",
		Get: func(d *domain.DataNode) *time.Time { return d.EditorExpirationDate },
		Set: func(d *domain.DataNode, v *time.Time) { d.EditorExpirationDate = copyTime(v) },
	}
	DataNodeEditInProgress = Attribute[*domain.DataNode, bool]{
		Kind: domain.KindDataNode, Name: "edit_in_progress",
		Get: func(d *domain.DataNode) bool { return d.EditInProgress },
		Set: func(d *domain.DataNode, v bool) { d.EditInProgress = v },
	}
	DataNodeEdits = Attribute[*domain.DataNode, []domain.Edit]{
		Kind: domain.KindDataNode, Name: "edits",
		Get: func(d *domain.DataNode) []domain.Edit { return cloneEdits(d.Edits) },
		Set: func(d *domain.DataNode, v []domain.Edit) { d.Edits = cloneEdits(v) },
	}
)

// Submission attributes.
var (
	SubmissionStatus = Attribute[*domain.Submission, domain.SubmissionStatus]{
		Kind: domain.KindSubmission, Name: "status",
		Get: func(s *domain.Submission) domain.SubmissionStatus { return s.Status },
		Set: func(s *domain.Submission, v domain.SubmissionStatus) { s.Status = v },
	}
	SubmissionJobIDs = Attribute[*domain.Submission, []string]{
		Kind: domain.KindSubmission, Name: "job_ids",
		Get: func(s *domain.Submission) []string { return append([]string{}, s.JobIDs...) },
		Set: func(s *domain.Submission, v []string) { s.JobIDs = append([]string{}, v...) },
	}
)

// Scenario and task attributes.
var (
	ScenarioIsPrimary = Attribute[*domain.Scenario, bool]{
		Kind: domain.KindScenario, Name: "is_primary",
		Get: func(s *domain.Scenario) bool { return s.IsPrimary },
		Set: func(s *domain.Scenario, v bool) { s.IsPrimary = v },
	}
	ScenarioTags = Attribute[*domain.Scenario, []string]{
		Kind: domain.KindScenario, Name: "tags",
		Get: func(s *domain.Scenario) []string { return append([]string{}, s.Tags...) },
		Set: func(s *domain.Scenario, v []string) { s.Tags = append([]string{}, v...) },
	}
	TaskSkippable = Attribute[*domain.Task, bool]{
		Kind: domain.KindTask, Name: "skippable",
		Get: func(t *domain.Task) bool { return t.Skippable },
		Set: func(t *domain.Task, v bool) { t.Skippable = v },
	}
	CycleEndDate = Attribute[*domain.Cycle, time.Time]{
		Kind: domain.KindCycle, Name: "end_date",
		Get: func(c *domain.Cycle) time.Time { return c.EndDate },
		Set: func(c *domain.Cycle, v time.Time) { c.EndDate = v },
	}
)

// TrackEdit appends edit to the node's history and moves its last edit date.
func TrackEdit(ctx context.Context, r *Reloader, dn *domain.DataNode, edit domain.Edit) error {
	return Mutate(ctx, r, dn, DataNodeEdits.Name, edit.Clone(), func(d *domain.DataNode) { d.TrackEdit(edit) })
}

// UnlockEdit clears the editor lock of dn.
func UnlockEdit(ctx context.Context, r *Reloader, dn *domain.DataNode) error {
	if err := Write(ctx, r, dn, DataNodeEditorID, nil); err != nil {
		return err
	}
	if err := Write(ctx, r, dn, DataNodeEditorExpirationDate, nil); err != nil {
		return err
	}
	return Write(ctx, r, dn, DataNodeEditInProgress, false)
}

// LockEdit marks dn as being written by editorID until expiration.
func LockEdit(ctx context.Context, r *Reloader, dn *domain.DataNode, editorID string, expiration *time.Time) error {
	return Mutate(ctx, r, dn, DataNodeEditInProgress.Name, true, func(d *domain.DataNode) { d.LockEdit(editorID, expiration) })
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneEdits(in []domain.Edit) []domain.Edit {
	if in == nil {
		return nil
	}
	out := make([]domain.Edit, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
