package review

import (
	"strings"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/jomei/notionapi"
)

// Review database property names.
const (
	PropTransactionID    = "Transaction ID"
	PropSession          = "Session"
	PropDate             = "Date"
	PropDescription      = "Description"
	PropAmount           = "Amount"
	PropProposedAccount  = "Proposed Account"
	PropConfidence       = "Confidence"
	PropReasoning        = "Reasoning"
	PropStatus           = "Status"
	PropCorrectedAccount = "Corrected Account"
	PropNote             = "Note"
)

// Review statuses.
const (
	StatusPending = "Pending"
	StatusApplied = "Applied"
)

func richText(content string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{
			{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: content},
			},
		},
	}
}

func selectOption(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Select: notionapi.Option{Name: name}}
}

// ResultToNotionProperties converts a flagged result to review page properties.
// The proposed account is rendered as "code - name"; Corrected Account starts
// empty for the reviewer to fill.
func ResultToNotionProperties(sessionID string, r domain.CategorizationResult) notionapi.Properties {
	amount, _ := r.Amount.Float64()
	props := notionapi.Properties{
		PropTransactionID: notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{Content: r.TransactionID},
				},
			},
		},
		PropSession:         richText(sessionID),
		PropDate:            richText(r.Date),
		PropDescription:     richText(r.Description),
		PropAmount:          notionapi.NumberProperty{Number: amount},
		PropProposedAccount: richText(r.AccountCode + " - " + r.AccountName),
		PropConfidence:      notionapi.NumberProperty{Number: r.Confidence},
		PropStatus:          selectOption(StatusPending),
		PropCorrectedAccount: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{},
		},
	}
	if r.Reasoning != "" {
		props[PropReasoning] = richText(r.Reasoning)
	}
	return props
}

// plainText reads a title or rich text property. Pages decoded from the API
// carry pointer properties; pages built locally carry values.
func plainText(page notionapi.Page, name string) string {
	prop, ok := page.Properties[name]
	if !ok {
		return ""
	}
	var parts []notionapi.RichText
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		parts = p.RichText
	case notionapi.RichTextProperty:
		parts = p.RichText
	case *notionapi.TitleProperty:
		parts = p.Title
	case notionapi.TitleProperty:
		parts = p.Title
	}
	var b strings.Builder
	for _, rt := range parts {
		if rt.PlainText != "" {
			b.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			b.WriteString(rt.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

func selectName(page notionapi.Page, name string) string {
	switch p := page.Properties[name].(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name
	case notionapi.SelectProperty:
		return p.Select.Name
	}
	return ""
}

func number(page notionapi.Page, name string) float64 {
	switch p := page.Properties[name].(type) {
	case *notionapi.NumberProperty:
		return p.Number
	case notionapi.NumberProperty:
		return p.Number
	}
	return 0
}

// accountCode takes the code from "5100", "5100 - Rent" or "5100: Rent".
func accountCode(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " :"); i >= 0 {
		s = s[:i]
	}
	return s
}
