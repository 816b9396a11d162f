package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dgallion1/docredact/internal/pathstore"
	"github.com/dgallion1/docredact/internal/redact"
)

// Record is what the pathstore sink keeps for each copy.
type Record struct {
	DocID       string       `json:"doc_id"`
	Title       string       `json:"title"`
	Name        string       `json:"name"`
	ContentType string       `json:"content_type"`
	Size        int          `json:"size"`
	CreatedAt   time.Time    `json:"created_at"`
	Stats       redact.Stats `json:"stats"`
	Content     []byte       `json:"content,omitempty"`
}

// PathstoreSink stores copies as nodes under users/{user}/redactions/{doc}.
type PathstoreSink struct {
	client *pathstore.Client
}

func NewPathstoreSink(client *pathstore.Client) *PathstoreSink {
	return &PathstoreSink{client: client}
}

// ErrInvalidKey is returned for user or document ids that are not a single
// plain path segment.
var ErrInvalidKey = errors.New("invalid record key segment")

// ValidSegment reports whether id can be used as one pathstore key segment
// without escaping its parent.
func ValidSegment(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, "/\\\x00")
}

func recordsKey(userID string) (string, error) {
	if !ValidSegment(userID) {
		return "", fmt.Errorf("%w: user %q", ErrInvalidKey, userID)
	}
	return path.Join("users", userID, "redactions"), nil
}

func recordKey(userID, docID string) (string, error) {
	prefix, err := recordsKey(userID)
	if err != nil {
		return "", err
	}
	if !ValidSegment(docID) {
		return "", fmt.Errorf("%w: doc %q", ErrInvalidKey, docID)
	}
	return path.Join(prefix, docID), nil
}

func (s *PathstoreSink) Put(ctx context.Context, a *Artifact) (string, error) {
	key, err := recordKey(a.UserID, a.DocID)
	if err != nil {
		return "", fmt.Errorf("pathstore put: %w", err)
	}
	rec := Record{
		DocID:       a.DocID,
		Title:       a.Title,
		Name:        a.Name,
		ContentType: a.ContentType,
		Size:        len(a.Data),
		CreatedAt:   a.CreatedAt,
		Stats:       a.Stats,
		Content:     a.Data,
	}
	err = s.client.PutNode(ctx, key, pathstore.NodeRequest{
		Value:      rec,
		MemoryType: "redaction",
		Source:     "docredact",
	})
	if err != nil {
		return "", fmt.Errorf("store redaction: %w", err)
	}
	return key, nil
}

// List returns a user's records without their content.
func (s *PathstoreSink) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	prefix, err := recordsKey(userID)
	if err != nil {
		return nil, err
	}
	nodes, err := s.client.ListChildren(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("list redactions: %w", err)
	}
	records := make([]Record, 0, len(nodes))
	for _, n := range nodes {
		var rec Record
		if err := json.Unmarshal(n.Value, &rec); err != nil {
			// Not a record (or an older shape); skip it.
			continue
		}
		rec.Content = nil
		records = append(records, rec)
	}
	return records, nil
}

// Get returns one record with its content, or nil if it does not exist.
func (s *PathstoreSink) Get(ctx context.Context, userID, docID string) (*Record, error) {
	key, err := recordKey(userID, docID)
	if err != nil {
		return nil, err
	}
	node, err := s.client.GetNode(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get redaction: %w", err)
	}
	if node == nil {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(node.Value, &rec); err != nil {
		return nil, fmt.Errorf("decode redaction: %w", err)
	}
	return &rec, nil
}

// Delete removes a record and anything stored beneath it.
func (s *PathstoreSink) Delete(ctx context.Context, userID, docID string) error {
	key, err := recordKey(userID, docID)
	if err != nil {
		return err
	}
	if err := s.client.DeleteNode(ctx, key, true); err != nil {
		return fmt.Errorf("delete redaction: %w", err)
	}
	return nil
}
