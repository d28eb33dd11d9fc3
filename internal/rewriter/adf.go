package rewriter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxADFDepth caps the node tree depth accepted from Jira. Real documents
// stay in single digits; anything deeper is hostile or corrupt.
const maxADFDepth = 100

// adfNode is one node of an Atlassian Document Format tree.
type adfNode struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Content []adfNode       `json:"content"`
	Attrs   map[string]any  `json:"attrs"`
	Marks   []adfMark       `json:"marks"`
	Raw     json.RawMessage `json:"-"`
}

type adfMark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs"`
}

// adfToMarkdown converts an ADF document to Markdown. Mentions are resolved
// against the user lookup immediately; media nodes emit their filename so
// the attachment pass can resolve them.
func adfToMarkdown(raw string, users map[string]int64) (string, error) {
	var doc adfNode
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", fmt.Errorf("parse ADF document: %w", err)
	}
	if doc.Type != "doc" {
		return "", fmt.Errorf("not an ADF document (type %q)", doc.Type)
	}
	var b strings.Builder
	if err := renderBlocks(&b, doc.Content, users, "", 0); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func renderBlocks(b *strings.Builder, nodes []adfNode, users map[string]int64, prefix string, depth int) error {
	if depth > maxADFDepth {
		return fmt.Errorf("ADF document exceeds depth %d", maxADFDepth)
	}
	for i, n := range nodes {
		if i > 0 {
			b.WriteString("\n")
		}
		if err := renderBlock(b, n, users, prefix, depth); err != nil {
			return err
		}
	}
	return nil
}

func renderBlock(b *strings.Builder, n adfNode, users map[string]int64, prefix string, depth int) error {
	switch n.Type {
	case "paragraph":
		b.WriteString(prefix)
		renderInline(b, n.Content, users)
		b.WriteString("\n")
	case "heading":
		level := attrInt(n.Attrs, "level", 1)
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		b.WriteString(prefix + strings.Repeat("#", level) + " ")
		renderInline(b, n.Content, users)
		b.WriteString("\n")
	case "bulletList":
		for _, item := range n.Content {
			if err := renderListItem(b, item, users, prefix, "- ", depth+1); err != nil {
				return err
			}
		}
	case "orderedList":
		for i, item := range n.Content {
			marker := fmt.Sprintf("%d. ", i+1)
			if err := renderListItem(b, item, users, prefix, marker, depth+1); err != nil {
				return err
			}
		}
	case "codeBlock":
		lang := attrString(n.Attrs, "language")
		b.WriteString(prefix + "```" + lang + "\n")
		for _, child := range n.Content {
			b.WriteString(child.Text)
		}
		b.WriteString("\n" + prefix + "```\n")
	case "blockquote":
		var inner strings.Builder
		if err := renderBlocks(&inner, n.Content, users, "", depth+1); err != nil {
			return err
		}
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			b.WriteString(prefix + "> " + line + "\n")
		}
	case "panel":
		return renderBlocks(b, n.Content, users, prefix, depth+1)
	case "rule":
		b.WriteString(prefix + "---\n")
	case "table":
		renderTable(b, n, users, prefix)
	case "mediaGroup", "mediaSingle":
		for _, child := range n.Content {
			if err := renderBlock(b, child, users, prefix, depth+1); err != nil {
				return err
			}
		}
	case "media":
		if name := mediaFilename(n.Attrs); name != "" {
			b.WriteString(prefix + "![" + name + "](" + name + ")\n")
		}
	default:
		// Unknown block: salvage its inline text rather than dropping it.
		if len(n.Content) > 0 {
			b.WriteString(prefix)
			renderInline(b, n.Content, users)
			b.WriteString("\n")
		}
	}
	return nil
}

func renderListItem(b *strings.Builder, item adfNode, users map[string]int64, prefix, marker string, depth int) error {
	if depth > maxADFDepth {
		return fmt.Errorf("ADF document exceeds depth %d", maxADFDepth)
	}
	var inner strings.Builder
	if err := renderBlocks(&inner, item.Content, users, "", depth); err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(inner.String(), "\n"), "\n")
	cont := strings.Repeat(" ", len(marker))
	for i, line := range lines {
		if i == 0 {
			b.WriteString(prefix + marker + line + "\n")
		} else if line == "" {
			b.WriteString("\n")
		} else {
			b.WriteString(prefix + cont + line + "\n")
		}
	}
	return nil
}

// renderTable emits a GFM pipe table. Cell content is flattened to a single
// line; the first row supplies the header.
func renderTable(b *strings.Builder, table adfNode, users map[string]int64, prefix string) {
	var rows [][]string
	for _, row := range table.Content {
		if row.Type != "tableRow" {
			continue
		}
		var cells []string
		for _, cell := range row.Content {
			var inner strings.Builder
			_ = renderBlocks(&inner, cell.Content, users, "", maxADFDepth-2)
			text := strings.Join(strings.Fields(inner.String()), " ")
			cells = append(cells, strings.ReplaceAll(text, "|", "\\|"))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return
	}
	b.WriteString(prefix + "| " + strings.Join(rows[0], " | ") + " |\n")
	sep := make([]string, len(rows[0]))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString(prefix + "| " + strings.Join(sep, " | ") + " |\n")
	for _, cells := range rows[1:] {
		b.WriteString(prefix + "| " + strings.Join(cells, " | ") + " |\n")
	}
}

func renderInline(b *strings.Builder, nodes []adfNode, users map[string]int64) {
	for _, n := range nodes {
		switch n.Type {
		case "text":
			b.WriteString(applyMarks(n.Text, n.Marks))
		case "hardBreak":
			b.WriteString("  \n")
		case "mention":
			id := attrString(n.Attrs, "id")
			if redmineID, ok := users[id]; ok {
				fmt.Fprintf(b, "user#%d", redmineID)
			} else {
				b.WriteString(strings.TrimPrefix(attrString(n.Attrs, "text"), "@"))
			}
		case "emoji":
			b.WriteString(attrString(n.Attrs, "shortName"))
		case "inlineCard":
			if url := attrString(n.Attrs, "url"); url != "" {
				b.WriteString(url)
			}
		case "status":
			b.WriteString(attrString(n.Attrs, "text"))
		case "date":
			b.WriteString(attrString(n.Attrs, "timestamp"))
		default:
			renderInline(b, n.Content, users)
		}
	}
}

func applyMarks(text string, marks []adfMark) string {
	for _, m := range marks {
		switch m.Type {
		case "strong":
			text = "**" + text + "**"
		case "em":
			text = "*" + text + "*"
		case "code":
			text = "`" + text + "`"
		case "strike":
			text = "~~" + text + "~~"
		case "link":
			if href := attrString(m.Attrs, "href"); href != "" {
				text = "[" + text + "](" + href + ")"
			}
		}
	}
	return text
}

// flattenADF is the last-resort conversion: plain text preserving paragraph
// breaks, hard breaks and list item boundaries. It tolerates trees the
// structured renderer rejects, so its depth bound is only a loop guard.
func flattenADF(raw string) string {
	var doc adfNode
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return raw
	}
	var parts []string
	var walk func(n adfNode, depth int) string
	walk = func(n adfNode, depth int) string {
		if depth > 10000 {
			return ""
		}
		switch n.Type {
		case "text":
			return n.Text
		case "hardBreak":
			return "\n"
		case "mention":
			return attrString(n.Attrs, "text")
		}
		var b strings.Builder
		for _, child := range n.Content {
			if child.Type == "listItem" {
				b.WriteString("- ")
			}
			b.WriteString(walk(child, depth+1))
			switch child.Type {
			case "paragraph", "listItem", "heading":
				b.WriteString("\n")
			}
		}
		return b.String()
	}
	for _, block := range doc.Content {
		if text := strings.TrimRight(walk(block, 0), "\n"); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func attrString(attrs map[string]any, key string) string {
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}

func attrInt(attrs map[string]any, key string, def int) int {
	if v, ok := attrs[key].(float64); ok {
		return int(v)
	}
	return def
}

func mediaFilename(attrs map[string]any) string {
	if alt := attrString(attrs, "alt"); alt != "" {
		return alt
	}
	return ""
}
