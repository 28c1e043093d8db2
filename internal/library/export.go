package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/bibtidy/internal/bibtex"
	"github.com/starford/bibtidy/internal/store"
)

// ExportRequest chooses what to export. Empty IDs with SelectedOnly unset
// exports the whole library.
type ExportRequest struct {
	IDs          []string
	SelectedOnly bool
	Filename     string
}

// Export is a serialized bibliography ready to be downloaded.
type Export struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Content  string `json:"content"`
	Count    int    `json:"count"`
}

// Export serializes the requested records in display order. Without a
// filename one is generated from the export prefix and the local time.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*Export, error) {
	var rows []store.RecordRow
	var err error
	if req.SelectedOnly && len(req.IDs) == 0 {
		yes := true
		rows, _, err = s.db.List(ctx, store.ListFilter{Selected: &yes})
	} else {
		rows, err = s.resolve(ctx, req.IDs)
	}
	if err != nil {
		return nil, fmt.Errorf("library: export: %w", err)
	}

	recs := make([]bibtex.Record, len(rows))
	for i, r := range rows {
		recs[i] = r.Record
	}
	content, err := bibtex.Serialize(recs)
	if err != nil {
		return nil, fmt.Errorf("library: export: %w", err)
	}

	name := strings.TrimSpace(req.Filename)
	if name == "" {
		name = s.exportPrefix + "_" + s.now().Format("20060102_150405") + ".bib"
	} else if !strings.HasSuffix(strings.ToLower(name), ".bib") {
		name += ".bib"
	}
	return &Export{
		Filename: name,
		MIMEType: bibtex.MIMEType,
		Content:  content,
		Count:    len(recs),
	}, nil
}
