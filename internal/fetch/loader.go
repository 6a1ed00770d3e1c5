package fetch

import (
	"context"
	"fmt"

	"github.com/hyperifyio/contentgrade/internal/document"
)

// Loader downloads a URL and runs the body through the document parser.
type Loader struct {
	Client *Client
	Parser *document.Parser
}

// Load fetches rawURL and parses it according to its content type.
func (l *Loader) Load(ctx context.Context, rawURL string) (document.Document, error) {
	page, err := l.Client.Get(ctx, rawURL)
	if err != nil {
		return document.Document{}, fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, err)
	}
	parser := l.Parser
	if parser == nil {
		parser = &document.Parser{}
	}
	return parser.Parse(ctx, page.Body, document.FilenameFor(page.ContentType))
}
