package phase

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jira2redmine/jira2redmine/internal/push"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSelectionIntersectsAndSkips(t *testing.T) {
	got, err := Selection(FamilyProjects, Options{
		Phases: []string{PhaseTransform, PhasePush},
		Skip:   []string{PhasePush},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{PhaseTransform}, got)
}

func TestSelectionKeepsDefaultOrder(t *testing.T) {
	got, err := Selection(FamilyProjects, Options{
		Phases: []string{PhasePush, PhaseJira},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{PhaseJira, PhasePush}, got)
}

func TestSelectionRejectsUnknownNames(t *testing.T) {
	_, err := Selection(FamilyProjects, Options{Phases: []string{"upload"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload")
}

func TestSelectionRejectsUnknownFamily(t *testing.T) {
	_, err := Selection("sprints", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sprints")
}

func TestPushGateRequiresConfirmation(t *testing.T) {
	o := &Orchestrator{Options: Options{}}
	err := o.checkGate(PhasePush)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--confirm-push")

	o.Options.ConfirmPush = true
	assert.NoError(t, o.checkGate(PhasePush))
}

func TestPullGateRequiresConfirmation(t *testing.T) {
	o := &Orchestrator{Options: Options{ConfirmPush: true}}
	err := o.checkGate(PhasePull)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--confirm-pull")
}

func TestDryRunBypassesGates(t *testing.T) {
	o := &Orchestrator{Options: Options{DryRun: true}}
	assert.NoError(t, o.checkGate(PhasePush))
	assert.NoError(t, o.checkGate(PhasePull))
}

func TestRunRejectsUnknownFamily(t *testing.T) {
	o := &Orchestrator{Log: testLogger()}
	err := o.Run(context.Background(), "sprints")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sprints")
}

func TestRunSubtasksDryRun(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	o := &Orchestrator{
		Store:   s,
		Pusher:  &push.Pusher{Store: s, Log: testLogger(), DryRun: true},
		Log:     testLogger(),
		Options: Options{DryRun: true},
	}
	require.NoError(t, o.Run(ctx, FamilySubtasks))
}

func TestFamiliesOrder(t *testing.T) {
	fams := Families()
	assert.Equal(t, []string{
		FamilyProjects, FamilyUsers, FamilyIssues, FamilyAttachments,
		FamilyJournals, FamilyWatchers, FamilySubtasks,
	}, fams)
	for _, f := range fams {
		_, ok := defaultPhases[f]
		assert.True(t, ok, "family %s has no phase list", f)
	}
}
