// Package review exports flagged categorizations to a Notion database for human
// review and reads reviewer corrections back.
package review

import (
	"context"

	"github.com/jomei/notionapi"
)

// ReviewDatabase is the Notion database that holds review pages.
// This interface enables mocking and testing of Notion operations.
type ReviewDatabase interface {
	// AddPage creates a review page with the given properties.
	AddPage(ctx context.Context, properties notionapi.Properties) (*notionapi.Page, error)

	// SetProperties overwrites the given properties of a review page.
	SetProperties(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QuerySession returns one result page of review pages whose Session
	// property equals sessionID, starting at cursor.
	QuerySession(ctx context.Context, sessionID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error)
}
