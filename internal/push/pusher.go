// Package push writes approved proposals to Redmine. Each entity step only
// touches rows whose status marks them ready, so re-running after a partial
// failure resumes where the previous run stopped.
package push

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jira2redmine/jira2redmine/internal/attachments"
	"github.com/jira2redmine/jira2redmine/internal/redmine"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Pusher drives the per-entity push steps.
type Pusher struct {
	Store       *store.Store
	Redmine     *redmine.Client
	Attachments *attachments.Pipeline
	Log         logrus.FieldLogger
	// DryRun renders payload previews instead of calling Redmine.
	DryRun bool
	// UseExtended requests the extended API for journal author and
	// timestamp overrides when the server advertises it.
	UseExtended bool
}

// Counts summarizes one push step.
type Counts struct {
	Pushed  int
	Failed  int
	Skipped int
}

func (c Counts) Fields() logrus.Fields {
	return logrus.Fields{"pushed": c.Pushed, "failed": c.Failed, "skipped": c.Skipped}
}

// noteLimit caps stored error notes.
const noteLimit = 500

// errNote renders an error for the notes column: at most noteLimit
// characters, with an ellipsis marking the cut.
func errNote(err error) *string {
	msg := err.Error()
	if len(msg) > noteLimit {
		cut := noteLimit - 1
		for cut > 0 && (msg[cut]&0xC0) == 0x80 {
			cut--
		}
		msg = msg[:cut] + "…"
	}
	return &msg
}

// preview logs the payload a dry run would have sent, as one JSON line.
func (p *Pusher) preview(entity string, mappingID int64, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(`{"error":"payload not serializable"}`)
	}
	p.Log.WithFields(logrus.Fields{
		"entity":     entity,
		"mapping_id": mappingID,
		"payload":    string(raw),
	}).Info("dry-run")
}

// alreadyWatching reports Redmine's duplicate-watcher rejection, which the
// watcher step treats as success.
func alreadyWatching(err error) bool {
	var apiErr *redmine.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(apiErr.Message, "is already watching")
}
