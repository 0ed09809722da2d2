package review

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
)

// queryPageSize is the largest page the Notion API returns.
const queryPageSize = 100

// NotionDatabase is the ReviewDatabase backed by the Notion SDK.
type NotionDatabase struct {
	client     *notionapi.Client
	databaseID notionapi.DatabaseID
}

// NewNotionDatabase binds a client for token to one review database.
func NewNotionDatabase(token, databaseID string) (*NotionDatabase, error) {
	if token == "" || databaseID == "" {
		return nil, fmt.Errorf("NewNotionDatabase: notion token and review database id are required")
	}
	return &NotionDatabase{
		client:     notionapi.NewClient(notionapi.Token(token)),
		databaseID: notionapi.DatabaseID(databaseID),
	}, nil
}

// AddPage creates a page under the review database.
func (d *NotionDatabase) AddPage(ctx context.Context, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := d.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: d.databaseID,
		},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("AddPage: %w", err)
	}
	return page, nil
}

// SetProperties updates the given properties of a review page.
func (d *NotionDatabase) SetProperties(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := d.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: properties})
	if err != nil {
		return nil, fmt.Errorf("SetProperties: %s: %w", pageID, err)
	}
	return page, nil
}

// QuerySession filters the review database by the Session property.
func (d *NotionDatabase) QuerySession(ctx context.Context, sessionID string, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error) {
	req := &notionapi.DatabaseQueryRequest{
		Filter: &notionapi.PropertyFilter{
			Property: PropSession,
			RichText: &notionapi.TextFilterCondition{Equals: sessionID},
		},
		StartCursor: cursor,
		PageSize:    queryPageSize,
	}
	resp, err := d.client.Database.Query(ctx, d.databaseID, req)
	if err != nil {
		return nil, fmt.Errorf("QuerySession: %w", err)
	}
	return resp, nil
}

var _ ReviewDatabase = (*NotionDatabase)(nil)
