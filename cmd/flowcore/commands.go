package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"flowcore/internal/core"
	"flowcore/pkg/domain"
	"flowcore/plugins/jobarchive"
)

// withApp opens the configured runtime for one command and closes it
// afterwards, joining the close error with the command error.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, flags, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()
	return fn(ctx, a)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type jobSummary struct {
	ID           string   `json:"id"`
	TaskID       string   `json:"task_id"`
	SubmissionID string   `json:"submission_id"`
	Status       string   `json:"status"`
	Stacktrace   []string `json:"stacktrace"`
}

type demoSummary struct {
	Jobs        []jobSummary `json:"jobs"`
	OutputID    string       `json:"output_id"`
	OutputValue any          `json:"output_value"`
	Metrics     []string     `json:"metrics,omitempty"`
}

func newDemoCmd(flags *globalFlags) *cobra.Command {
	var showMetrics bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Submit and run one succeeding and one failing job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				summary, err := runDemo(ctx, a)
				if err != nil {
					return err
				}
				if showMetrics {
					families, err := a.metrics.Gather()
					if err != nil {
						return fmt.Errorf("gather metrics: %w", err)
					}
					for _, mf := range families {
						summary.Metrics = append(summary.Metrics, mf.GetName())
					}
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "include the names of recorded metric families")
	return cmd
}

func demoDouble(_ context.Context, in []any) ([]any, error) {
	switch v := in[0].(type) {
	case float64:
		return []any{v * 2}, nil
	case int:
		return []any{v * 2}, nil
	default:
		return nil, fmt.Errorf("double: unsupported input %T", in[0])
	}
}

func demoExplode(context.Context, []any) ([]any, error) {
	return nil, errors.New("explode: refusing to compute")
}

func runDemo(ctx context.Context, a *app) (*demoSummary, error) {
	for name, fn := range map[string]core.Function{"double": demoDouble, "explode": demoExplode} {
		if _, ok := a.svc.Functions().Lookup(name); ok {
			continue
		}
		if err := a.svc.Functions().Register(name, fn); err != nil {
			return nil, err
		}
	}
	input := &domain.DataNode{ConfigID: "demo_input", Storage: domain.StorageJSON}
	good := &domain.DataNode{ConfigID: "demo_doubled", Storage: domain.StorageJSON}
	bad := &domain.DataNode{ConfigID: "demo_exploded", Storage: domain.StorageJSON}
	for _, dn := range []*domain.DataNode{input, good, bad} {
		if err := a.svc.Create(ctx, dn); err != nil {
			return nil, err
		}
	}
	if err := a.svc.Values().Write(ctx, input, 21); err != nil {
		return nil, err
	}
	tasks := []*domain.Task{
		{ConfigID: "demo_double", Function: "double", InputIDs: []string{input.ID}, OutputIDs: []string{good.ID}},
		{ConfigID: "demo_explode", Function: "explode", InputIDs: []string{input.ID}, OutputIDs: []string{bad.ID}},
	}
	jobIDs := make([]string, 0, len(tasks))
	subIDs := make(map[string]string, len(tasks))
	for _, task := range tasks {
		if err := a.svc.Create(ctx, task); err != nil {
			return nil, err
		}
		sub, job, err := a.svc.Submit(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		jobIDs = append(jobIDs, job.ID)
		subIDs[job.ID] = sub.ID
	}
	jobs, err := a.svc.RunAll(ctx, jobIDs, a.cfg.Workers)
	if err != nil {
		return nil, err
	}

	out := &demoSummary{OutputID: good.ID}
	for _, job := range jobs {
		out.Jobs = append(out.Jobs, jobSummary{
			ID:           job.ID,
			TaskID:       job.TaskID,
			SubmissionID: subIDs[job.ID],
			Status:       string(job.Status),
			Stacktrace:   job.Stacktrace,
		})
	}
	fresh, err := core.Fresh(ctx, a.svc.Reloader(), good)
	if err != nil {
		return nil, err
	}
	if out.OutputValue, err = a.svc.Values().Read(ctx, fresh); err != nil {
		return nil, err
	}
	return out, nil
}

func newJobCmd(flags *globalFlags) *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Inspect jobs"}
	var archived bool
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if archived {
					j, err := jobarchive.Load(ctx, a.blobs, a.cfg.Extensions.JobArchivePrefix, args[0])
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), j)
				}
				e, err := a.svc.Get(ctx, domain.KindJob, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), e)
			})
		},
	}
	show.Flags().BoolVar(&archived, "archived", false, "read the job from the blob archive instead of the repository")
	job.AddCommand(show)
	return job
}

type dataNodeView struct {
	*domain.DataNode
	Value any    `json:"value,omitempty"`
	Error string `json:"value_error,omitempty"`
}

func newDataNodeCmd(flags *globalFlags) *cobra.Command {
	dn := &cobra.Command{Use: "datanode", Short: "Inspect data nodes"}
	dn.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a data node and its value as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				e, err := a.svc.Get(ctx, domain.KindDataNode, args[0])
				if err != nil {
					return err
				}
				node, ok := e.(*domain.DataNode)
				if !ok {
					return fmt.Errorf("%s: %w", args[0], domain.ErrKindMismatch)
				}
				view := dataNodeView{DataNode: node}
				if v, err := a.svc.Values().Read(ctx, node); err != nil {
					view.Error = err.Error()
				} else {
					view.Value = v
				}
				return writeJSON(cmd.OutOrStdout(), view)
			})
		},
	})
	return dn
}

func newKindsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List registered entity kinds and active extensions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				reg, err := a.svc.Registry(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, k := range reg.Kinds() {
					if _, err := fmt.Fprintln(w, k); err != nil {
						return err
					}
				}
				for _, ext := range reg.Extensions() {
					if _, err := fmt.Fprintf(w, "extension %s\n", ext); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
