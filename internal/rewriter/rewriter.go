// Package rewriter converts Jira content (ADF documents and rendered HTML)
// into Redmine-flavoured Markdown and rewrites Jira-specific references
// (attachments, user mentions, issue keys) to their Redmine counterparts.
//
// Every function here is pure: the same inputs produce byte-identical
// output. The automation hash protocol depends on that.
package rewriter

import (
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/jira2redmine/jira2redmine/internal/store"
)

// Lookups carries the mapping state a rewrite run resolves against.
type Lookups struct {
	// Attachments maps jira_attachment_id to its rewriter ref.
	Attachments map[string]store.AttachmentRef
	// Users maps jira account ids to ready Redmine user ids.
	Users map[string]int64
	// IssueKeys maps jira issue keys to ready Redmine issue ids.
	IssueKeys map[string]int64
}

// attachmentsByName indexes the refs by their original Jira filename.
func (l Lookups) attachmentsByName() map[string]store.AttachmentRef {
	out := make(map[string]store.AttachmentRef, len(l.Attachments))
	for _, ref := range l.Attachments {
		out[ref.Filename] = ref
	}
	return out
}

// Render converts a Jira body to Markdown and applies all reference
// rewrites. html is preferred over adf unless it contains macro
// placeholders; a failed ADF conversion falls back to plain-text
// flattening. Either input may be nil.
func Render(adf, html *string, lk Lookups) string {
	md := convert(adf, html, lk)
	md = rewriteAttachments(md, lk)
	md = rewriteUserLinks(md, lk)
	md = rewriteIssueKeys(md, lk)
	md = removeAvatars(md)
	md = normalizeRefSpacing(md)
	return strings.TrimSpace(md)
}

func convert(adf, html *string, lk Lookups) string {
	if html != nil && *html != "" && !hasMacroPlaceholders(*html) {
		if md, err := htmltomarkdown.ConvertString(*html); err == nil {
			return md
		}
	}
	if adf == nil || *adf == "" {
		return ""
	}
	md, err := adfToMarkdown(*adf, lk.Users)
	if err != nil {
		return flattenADF(*adf)
	}
	return md
}

// hasMacroPlaceholders detects rendered bodies where Jira replaced macros
// or unrenderable ADF nodes with HTML comments. Converting those loses
// content, so the ADF source wins.
func hasMacroPlaceholders(html string) bool {
	return strings.Contains(html, "<!--")
}

var (
	attachmentTokenRe   = regexp.MustCompile(`attachment:([A-Za-z0-9._\-]+)`)
	attachmentAPIRe     = regexp.MustCompile(`https?://[^\s)"'<>]*/rest/api/\d+/attachment/content/(\d+)[^\s)"'<>]*`)
	attachmentSecureRe  = regexp.MustCompile(`https?://[^\s)"'<>]*/secure/attachment/(\d+)(?:/[^\s)"'<>]*)?`)
	markdownLinkRe      = regexp.MustCompile(`(!?)\[([^\]]*)\]\(([^()\s]+)\)`)
	profileAccountRe    = regexp.MustCompile(`(?:/people/|/jira/people/|accountId=)([0-9a-zA-Z:\-]+)`)
	issueKeyRe          = regexp.MustCompile(`\b([A-Z][A-Z0-9]+-[0-9]+)\b`)
	browseKeyRe         = regexp.MustCompile(`(?:/browse/|[?&]selectedIssue=)([A-Z][A-Z0-9]+-[0-9]+)`)
	avatarImageRe       = regexp.MustCompile(`!\[[^\]]*\]\([^)]*(?:avatar|/universal_avatar/)[^)]*\)`)
	refNeedsSpaceBefore = regexp.MustCompile(`([^\s(\[])(\x00ref\x00)`)
	refNeedsSpaceAfter  = regexp.MustCompile(`(\x00/ref\x00)([A-Za-z0-9])`)
)

// rewriteAttachments maps every recognized attachment reference to the
// SharePoint URL when offloaded, else the Redmine attachment token, else
// the bare unique filename.
func rewriteAttachments(md string, lk Lookups) string {
	byName := lk.attachmentsByName()

	replaceByID := func(s string, re *regexp.Regexp) string {
		return re.ReplaceAllStringFunc(s, func(match string) string {
			id := re.FindStringSubmatch(match)[1]
			ref, ok := lk.Attachments[id]
			if !ok {
				return match
			}
			return attachmentTarget(ref)
		})
	}
	md = replaceByID(md, attachmentAPIRe)
	md = replaceByID(md, attachmentSecureRe)

	// attachment:name tokens referencing the original filename get the
	// unique name (or the SharePoint URL).
	md = attachmentTokenRe.ReplaceAllStringFunc(md, func(match string) string {
		name := attachmentTokenRe.FindStringSubmatch(match)[1]
		if ref, ok := byName[name]; ok {
			return attachmentTarget(ref)
		}
		return match
	})

	// Media placeholders emitted by the ADF pass link a filename to
	// itself; resolve those too, then collapse links that now point at an
	// attachment token (Redmine expects the bare token).
	md = markdownLinkRe.ReplaceAllStringFunc(md, func(match string) string {
		parts := markdownLinkRe.FindStringSubmatch(match)
		text, target := parts[2], parts[3]
		if ref, ok := byName[target]; ok {
			target = attachmentTarget(ref)
		}
		if strings.HasPrefix(target, "attachment:") {
			return target
		}
		return parts[1] + "[" + text + "](" + target + ")"
	})
	return md
}

func attachmentTarget(ref store.AttachmentRef) string {
	if ref.SharePointURL != nil && *ref.SharePointURL != "" {
		return *ref.SharePointURL
	}
	return "attachment:" + ref.UniqueFilename
}

// rewriteUserLinks turns Jira profile links into user#id references when
// the account maps to a ready Redmine user, else into the display text.
func rewriteUserLinks(md string, lk Lookups) string {
	return markdownLinkRe.ReplaceAllStringFunc(md, func(match string) string {
		parts := markdownLinkRe.FindStringSubmatch(match)
		text, target := parts[2], parts[3]
		account := profileAccountRe.FindStringSubmatch(target)
		if account == nil {
			return match
		}
		if id, ok := lk.Users[account[1]]; ok {
			return fmt.Sprintf("user#%d", id)
		}
		return strings.TrimPrefix(text, "@")
	})
}

// rewriteIssueKeys maps issue keys (plain text or browse links) to #id
// references for already-mapped issues; unmapped keys stay as they are.
func rewriteIssueKeys(md string, lk Lookups) string {
	md = markdownLinkRe.ReplaceAllStringFunc(md, func(match string) string {
		parts := markdownLinkRe.FindStringSubmatch(match)
		key := browseKeyRe.FindStringSubmatch(parts[3])
		if key == nil {
			return match
		}
		if id, ok := lk.IssueKeys[key[1]]; ok {
			return fmt.Sprintf("#%d", id)
		}
		return key[1]
	})
	return issueKeyRe.ReplaceAllStringFunc(md, func(key string) string {
		if id, ok := lk.IssueKeys[key]; ok {
			return fmt.Sprintf("#%d", id)
		}
		return key
	})
}

func removeAvatars(md string) string {
	return avatarImageRe.ReplaceAllString(md, "")
}

// normalizeRefSpacing guarantees whitespace around #123 and user#123 so
// Redmine's wiki parser links them.
func normalizeRefSpacing(md string) string {
	refRe := regexp.MustCompile(`(user#[0-9]+|#[0-9]+)`)
	md = refRe.ReplaceAllString(md, "\x00ref\x00$1\x00/ref\x00")
	md = refNeedsSpaceBefore.ReplaceAllString(md, "$1 $2")
	md = refNeedsSpaceAfter.ReplaceAllString(md, "$1 $2")
	md = strings.ReplaceAll(md, "\x00ref\x00", "")
	md = strings.ReplaceAll(md, "\x00/ref\x00", "")
	return md
}
