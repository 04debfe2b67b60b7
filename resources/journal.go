// Package resources wraps the backend's data endpoints in typed services.
// Every call goes through the dispatcher, so bearer attachment, refresh, and
// error classification apply uniformly.
package resources

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aranyahq/aranya-go/api"
)

// JournalEntry is one journal record, scoped to the signed-in user.
type JournalEntry struct {
	ID        int64  `json:"id"`
	Mood      string `json:"mood"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Journal accesses the journal endpoints.
type Journal struct {
	client *api.Client
}

func NewJournal(client *api.Client) *Journal {
	return &Journal{client: client}
}

// List returns the user's entries, optionally filtered by the backend's
// search parameter (the app passes a formatted date).
func (j *Journal) List(ctx context.Context, search string) ([]JournalEntry, error) {
	var options []api.RequestOption
	if search != "" {
		query := url.Values{}
		query.Set("search", search)
		options = append(options, api.WithQuery(query))
	}

	var entries []JournalEntry
	if err := j.client.Get(ctx, "/journal/", &entries, options...); err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	return entries, nil
}

// Create adds an entry and returns it as stored by the backend.
func (j *Journal) Create(ctx context.Context, mood, content string) (*JournalEntry, error) {
	body := map[string]string{"mood": mood, "content": content}
	var entry JournalEntry
	if err := j.client.Post(ctx, "/journal/", body, &entry); err != nil {
		return nil, fmt.Errorf("create journal entry: %w", err)
	}
	return &entry, nil
}

// Update rewrites an entry's mood and content.
func (j *Journal) Update(ctx context.Context, id int64, mood, content string) (*JournalEntry, error) {
	body := map[string]string{"mood": mood, "content": content}
	var entry JournalEntry
	if err := j.client.Put(ctx, fmt.Sprintf("/journal/%d/", id), body, &entry); err != nil {
		return nil, fmt.Errorf("update journal entry %d: %w", id, err)
	}
	return &entry, nil
}

// Delete removes an entry.
func (j *Journal) Delete(ctx context.Context, id int64) error {
	if err := j.client.Delete(ctx, fmt.Sprintf("/journal/%d/", id)); err != nil {
		return fmt.Errorf("delete journal entry %d: %w", id, err)
	}
	return nil
}
