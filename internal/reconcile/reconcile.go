// Package reconcile implements the transform phase: it turns staged Jira
// entities into Redmine-ready proposals in the mapping tables, without ever
// touching rows an operator has edited by hand.
package reconcile

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jira2redmine/jira2redmine/internal/config"
	"github.com/jira2redmine/jira2redmine/internal/hashguard"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Reconciler drives the per-entity transforms.
type Reconciler struct {
	Store    *store.Store
	Log      logrus.FieldLogger
	Defaults config.Defaults
}

func New(st *store.Store, log logrus.FieldLogger, defaults config.Defaults) *Reconciler {
	return &Reconciler{Store: st, Log: log, Defaults: defaults}
}

// Summary tallies one transform run.
type Summary struct {
	Total     int
	Matched   int
	Ready     int
	Manual    int
	Overrides int
	Skipped   int
	Unchanged int
	Updated   int
}

// Fields renders the summary for structured logging.
func (s Summary) Fields() logrus.Fields {
	return logrus.Fields{
		"total":     s.Total,
		"matched":   s.Matched,
		"ready":     s.Ready,
		"manual":    s.Manual,
		"overrides": s.Overrides,
		"skipped":   s.Skipped,
		"unchanged": s.Unchanged,
		"updated":   s.Updated,
	}
}

func (s *Summary) classify(status string) {
	switch status {
	case store.StatusMatchFound:
		s.Matched++
	case store.StatusReadyForCreation, store.StatusReadyForPush:
		s.Ready++
	case store.StatusManualIntervention:
		s.Manual++
	}
}

// guard applies the manual-override check shared by every entity transform.
// It returns true when the row must be skipped, counting it appropriately.
func (s *Summary) guard(storedHash *string, currentHash string, status string, transformable map[string]bool) bool {
	if storedHash != nil && hashguard.IsManualOverride(*storedHash, currentHash) {
		s.Overrides++
		return true
	}
	if !transformable[status] {
		s.Skipped++
		return true
	}
	return false
}

// Transformable status sets per entity.
var (
	projectTransformable = map[string]bool{
		store.StatusPendingAnalysis:  true,
		store.StatusReadyForCreation: true,
		store.StatusMatchFound:       true,
	}
	userTransformable = projectTransformable
	issueTransformable = map[string]bool{
		store.StatusPendingAnalysis:  true,
		store.StatusReadyForCreation: true,
		store.StatusMatchFound:       true,
		store.StatusCreationFailed:   true,
	}
	journalTransformable = map[string]bool{
		store.StatusPending:      true,
		store.StatusReadyForPush: true,
		store.StatusFailed:       true,
	}
)

// jiraTimeLayout is the timestamp format Jira's REST API emits.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// parseJiraTime parses a Jira timestamp, tolerating the zone-colon variant.
func parseJiraTime(s string) (time.Time, bool) {
	for _, layout := range []string{jiraTimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// jiraTimeToRFC3339 normalizes a Jira timestamp for Redmine payloads and
// hashing. Unparsable input passes through unchanged.
func jiraTimeToRFC3339(s *string) *string {
	if s == nil {
		return nil
	}
	t, ok := parseJiraTime(*s)
	if !ok {
		return s
	}
	out := t.UTC().Format(time.RFC3339)
	return &out
}

// jiraTimeToDate extracts the date part of a Jira timestamp.
func jiraTimeToDate(s *string) *string {
	if s == nil {
		return nil
	}
	t, ok := parseJiraTime(*s)
	if !ok {
		if len(*s) >= 10 {
			d := (*s)[:10]
			return &d
		}
		return nil
	}
	d := t.Format("2006-01-02")
	return &d
}

func strp(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intp(n int64) *int64 { return &n }

func boolp(b bool) *bool { return &b }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	cut := n
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}
