// Package phase sequences the migration steps of each entity family:
// extract from Jira, snapshot Redmine, transform into proposals, then push.
// Attachments add a pull step between transform and push.
package phase

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jira2redmine/jira2redmine/internal/attachments"
	"github.com/jira2redmine/jira2redmine/internal/jira"
	"github.com/jira2redmine/jira2redmine/internal/push"
	"github.com/jira2redmine/jira2redmine/internal/reconcile"
	"github.com/jira2redmine/jira2redmine/internal/redmine"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Phase names.
const (
	PhaseJira      = "jira"
	PhaseRedmine   = "redmine"
	PhaseTransform = "transform"
	PhasePull      = "pull"
	PhasePush      = "push"
)

// Entity families in their required migration order.
const (
	FamilyProjects    = "projects"
	FamilyUsers       = "users"
	FamilyIssues      = "issues"
	FamilyAttachments = "attachments"
	FamilyJournals    = "journals"
	FamilyWatchers    = "watchers"
	FamilySubtasks    = "subtasks"
)

// defaultPhases lists which phases apply to each family, in run order.
var defaultPhases = map[string][]string{
	FamilyProjects:    {PhaseJira, PhaseRedmine, PhaseTransform, PhasePush},
	FamilyUsers:       {PhaseJira, PhaseRedmine, PhaseTransform, PhasePush},
	FamilyIssues:      {PhaseJira, PhaseTransform, PhasePush},
	FamilyAttachments: {PhaseJira, PhaseTransform, PhasePull, PhasePush},
	FamilyJournals:    {PhaseJira, PhaseTransform, PhasePush},
	FamilyWatchers:    {PhaseJira, PhaseTransform, PhasePush},
	FamilySubtasks:    {PhasePush},
}

// Families returns the supported family names in migration order.
func Families() []string {
	return []string{
		FamilyProjects, FamilyUsers, FamilyIssues, FamilyAttachments,
		FamilyJournals, FamilyWatchers, FamilySubtasks,
	}
}

// Options are the operator's phase controls, usually set from CLI flags.
type Options struct {
	// Phases restricts the run to the named phases; empty means all
	// defaults of the family.
	Phases []string
	// Skip removes phases from the selection.
	Skip []string
	// ConfirmPush permits writes to Redmine.
	ConfirmPush bool
	// ConfirmPull permits attachment downloads from Jira.
	ConfirmPull bool
	// DryRun previews push payloads instead of sending them.
	DryRun bool
}

// Orchestrator wires the components together and runs families phase by
// phase.
type Orchestrator struct {
	Store      *store.Store
	Extractor  *jira.Extractor
	Snapshot   *redmine.Snapshotter
	Reconciler *reconcile.Reconciler
	Pipeline   *attachments.Pipeline
	Pusher     *push.Pusher
	Log        logrus.FieldLogger
	Options    Options
}

// Run executes the selected phases of one family, in order.
func (o *Orchestrator) Run(ctx context.Context, family string) error {
	selected, err := Selection(family, o.Options)
	if err != nil {
		return err
	}
	for _, phase := range selected {
		if err := o.checkGate(phase); err != nil {
			return err
		}
		log := o.Log.WithFields(logrus.Fields{"family": family, "phase": phase})
		log.Info("phase starting")
		if err := o.runPhase(ctx, family, phase); err != nil {
			return fmt.Errorf("%s %s: %w", family, phase, err)
		}
		log.Info("phase done")
	}
	return nil
}

// Selection resolves the phases a run of family will execute under opts:
// the family defaults intersected with --phases, minus --skip, preserving
// the default order.
func Selection(family string, opts Options) ([]string, error) {
	defaults, ok := defaultPhases[family]
	if !ok {
		return nil, fmt.Errorf("unknown entity family %q", family)
	}
	include := map[string]bool{}
	for _, p := range opts.Phases {
		if !knownPhase(p) {
			return nil, fmt.Errorf("unknown phase %q", p)
		}
		include[p] = true
	}
	skip := map[string]bool{}
	for _, p := range opts.Skip {
		if !knownPhase(p) {
			return nil, fmt.Errorf("unknown phase %q", p)
		}
		skip[p] = true
	}
	var out []string
	for _, p := range defaults {
		if len(include) > 0 && !include[p] {
			continue
		}
		if skip[p] {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func knownPhase(p string) bool {
	switch p {
	case PhaseJira, PhaseRedmine, PhaseTransform, PhasePull, PhasePush:
		return true
	}
	return false
}

// checkGate enforces the confirmation flags before any externally visible
// write. Dry runs send nothing, so they pass freely.
func (o *Orchestrator) checkGate(phase string) error {
	if o.Options.DryRun {
		return nil
	}
	switch phase {
	case PhasePush:
		if !o.Options.ConfirmPush {
			return fmt.Errorf("phase push writes to Redmine; re-run with --confirm-push (or preview with --dry-run)")
		}
	case PhasePull:
		if !o.Options.ConfirmPull {
			return fmt.Errorf("phase pull downloads attachments from Jira; re-run with --confirm-pull")
		}
	}
	return nil
}

func (o *Orchestrator) runPhase(ctx context.Context, family, phase string) error {
	switch family {
	case FamilyProjects:
		switch phase {
		case PhaseJira:
			_, err := o.Extractor.Projects(ctx)
			return err
		case PhaseRedmine:
			_, err := o.Snapshot.Projects(ctx)
			return err
		case PhaseTransform:
			_, err := o.Reconciler.Projects(ctx)
			return err
		case PhasePush:
			_, err := o.Pusher.Projects(ctx)
			return err
		}
	case FamilyUsers:
		switch phase {
		case PhaseJira:
			_, err := o.Extractor.Users(ctx)
			return err
		case PhaseRedmine:
			_, err := o.Snapshot.Users(ctx)
			return err
		case PhaseTransform:
			_, err := o.Reconciler.Users(ctx)
			return err
		case PhasePush:
			_, err := o.Pusher.Users(ctx)
			return err
		}
	case FamilyIssues:
		switch phase {
		case PhaseJira:
			_, err := o.Extractor.Issues(ctx)
			return err
		case PhaseTransform:
			_, err := o.Reconciler.Issues(ctx)
			return err
		case PhasePush:
			_, err := o.Pusher.Issues(ctx)
			return err
		}
	case FamilyAttachments:
		switch phase {
		case PhaseJira:
			n, err := o.Store.SyncAttachmentMappings(ctx)
			if err == nil {
				o.Log.WithField("new_rows", n).Info("attachment mappings synced")
			}
			return err
		case PhaseTransform:
			_, err := o.Reconciler.Attachments(ctx)
			return err
		case PhasePull:
			if o.Options.DryRun {
				o.Log.Info("dry-run: skipping attachment downloads")
				return nil
			}
			_, err := o.Pipeline.Pull(ctx)
			return err
		case PhasePush:
			if o.Options.DryRun {
				o.Log.Info("dry-run: skipping attachment uploads")
				return nil
			}
			_, err := o.Pipeline.Push(ctx)
			return err
		}
	case FamilyJournals:
		switch phase {
		case PhaseJira:
			if _, err := o.Extractor.Comments(ctx); err != nil {
				return err
			}
			_, err := o.Extractor.Changelogs(ctx)
			return err
		case PhaseTransform:
			_, err := o.Reconciler.Journals(ctx)
			return err
		case PhasePush:
			_, err := o.Pusher.Journals(ctx)
			return err
		}
	case FamilyWatchers:
		switch phase {
		case PhaseJira:
			_, err := o.Extractor.Watchers(ctx)
			return err
		case PhaseTransform:
			_, err := o.Reconciler.Watchers(ctx)
			return err
		case PhasePush:
			_, err := o.Pusher.Watchers(ctx)
			return err
		}
	case FamilySubtasks:
		if phase == PhasePush {
			_, err := o.Pusher.Subtasks(ctx)
			return err
		}
	}
	return fmt.Errorf("phase %q is not defined for %s", phase, family)
}
