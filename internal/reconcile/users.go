package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Users reconciles the user mapping table against the staged Jira users and
// the Redmine user snapshot. The lookup key is the lowercased Jira email.
func (r *Reconciler) Users(ctx context.Context) (Summary, error) {
	var sum Summary
	if _, err := r.Store.SyncUserMappings(ctx); err != nil {
		return sum, err
	}

	snapshot, err := r.Store.RedmineUsers(ctx)
	if err != nil {
		return sum, err
	}
	byLogin := make(map[string][]store.StagingRedmineUser)
	byMail := make(map[string][]store.StagingRedmineUser)
	for _, u := range snapshot {
		byLogin[strings.ToLower(u.Login)] = append(byLogin[strings.ToLower(u.Login)], u)
		byMail[strings.ToLower(u.Mail)] = append(byMail[strings.ToLower(u.Mail)], u)
	}

	rows, err := r.Store.UserMappingsForTransform(ctx)
	if err != nil {
		return sum, err
	}
	sum.Total = len(rows)

	defaultStatus := r.Defaults.UserStatus
	if defaultStatus == "" {
		defaultStatus = "LOCKED"
	}

	for _, row := range rows {
		m := row.Mapping
		currentHash, err := UserHash(m)
		if err != nil {
			return sum, fmt.Errorf("hash user mapping %d: %w", m.MappingID, err)
		}
		if sum.guard(m.AutomationHash, currentHash, m.MigrationStatus, userTransformable) {
			continue
		}

		proposal := deriveUser(m, row.Staging, byLogin, byMail, defaultStatus)
		newHash, err := UserHash(proposal)
		if err != nil {
			return sum, fmt.Errorf("hash user proposal %d: %w", m.MappingID, err)
		}
		sum.classify(proposal.MigrationStatus)

		if newHash == currentHash && m.AutomationHash != nil && *m.AutomationHash == newHash {
			sum.Unchanged++
			continue
		}
		err = r.Store.UpdateUserMapping(ctx, m.MappingID, store.UserMappingUpdate{
			RedmineUserID:         proposal.RedmineUserID,
			MigrationStatus:       proposal.MigrationStatus,
			MatchType:             proposal.MatchType,
			Notes:                 proposal.Notes,
			ProposedRedmineLogin:  proposal.ProposedRedmineLogin,
			ProposedRedmineMail:   proposal.ProposedRedmineMail,
			ProposedFirstname:     proposal.ProposedFirstname,
			ProposedLastname:      proposal.ProposedLastname,
			ProposedRedmineStatus: proposal.ProposedRedmineStatus,
			AutomationHash:        newHash,
		})
		if err != nil {
			return sum, err
		}
		sum.Updated++
	}
	r.Log.WithFields(sum.Fields()).Info("user transform complete")
	return sum, nil
}

func deriveUser(m store.UserMapping, staging store.StagingJiraUser, byLogin, byMail map[string][]store.StagingRedmineUser, defaultStatus string) store.UserMapping {
	out := m
	out.RedmineUserID = nil
	out.MatchType = nil
	out.Notes = nil
	out.ProposedRedmineLogin = nil
	out.ProposedRedmineMail = nil
	out.ProposedFirstname = nil
	out.ProposedLastname = nil
	out.ProposedRedmineStatus = nil

	if staging.EmailAddress == nil || *staging.EmailAddress == "" {
		out.MigrationStatus = store.StatusManualIntervention
		out.Notes = strp("Jira account has no visible email address; map this user by hand.")
		return out
	}
	email := strings.ToLower(*staging.EmailAddress)

	if existing, matchType, ok := matchRedmineUser(email, byLogin, byMail); ok {
		out.RedmineUserID = intp(existing.RedmineUserID)
		out.MigrationStatus = store.StatusMatchFound
		out.MatchType = strp(matchType)
		out.ProposedRedmineLogin = strp(existing.Login)
		out.ProposedRedmineMail = strp(existing.Mail)
		out.ProposedFirstname = strp(existing.Firstname)
		out.ProposedLastname = strp(existing.Lastname)
		out.ProposedRedmineStatus = strp(redmineStatusName(existing.Status))
		return out
	}
	if len(byLogin[email]) > 1 || len(byMail[email]) > 1 {
		out.MigrationStatus = store.StatusManualIntervention
		out.Notes = strp(fmt.Sprintf("Multiple Redmine accounts match %q; pick one by hand.", email))
		return out
	}

	first, last, ok := splitDisplayName(staging.DisplayName)
	if !ok {
		out.MigrationStatus = store.StatusManualIntervention
		out.Notes = strp(fmt.Sprintf("Cannot split display name %q into first/last name.", staging.DisplayName))
		out.ProposedRedmineLogin = strp(email)
		out.ProposedRedmineMail = strp(email)
		return out
	}

	out.MigrationStatus = store.StatusReadyForCreation
	out.ProposedRedmineLogin = strp(email)
	out.ProposedRedmineMail = strp(email)
	out.ProposedFirstname = strp(first)
	out.ProposedLastname = strp(last)
	out.ProposedRedmineStatus = strp(defaultStatus)
	return out
}

// matchRedmineUser tries login first, then mail. A hit only counts when it
// is unambiguous.
func matchRedmineUser(email string, byLogin, byMail map[string][]store.StagingRedmineUser) (store.StagingRedmineUser, string, bool) {
	if candidates := byLogin[email]; len(candidates) == 1 {
		return candidates[0], store.MatchLogin, true
	}
	if candidates := byMail[email]; len(candidates) == 1 {
		return candidates[0], store.MatchMail, true
	}
	return store.StagingRedmineUser{}, "", false
}

// splitDisplayName derives first/last name from a Jira display name:
// "Last, First" when a comma is present, otherwise first word and last word.
func splitDisplayName(display string) (first, last string, ok bool) {
	display = strings.TrimSpace(display)
	if before, after, found := strings.Cut(display, ","); found {
		last = strings.TrimSpace(before)
		first = strings.TrimSpace(after)
		return first, last, first != "" && last != ""
	}
	words := strings.Fields(display)
	if len(words) < 2 {
		return "", "", false
	}
	return words[0], words[len(words)-1], true
}

// redmineStatusName renders a snapshot status code the way the mapping table
// stores it.
func redmineStatusName(status int64) string {
	switch status {
	case 1:
		return "ACTIVE"
	case 3:
		return "LOCKED"
	default:
		return fmt.Sprintf("STATUS_%d", status)
	}
}
