// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes bibtidy tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/bibtidy/internal/apperr"
	"github.com/starford/bibtidy/internal/bibtex"
	"github.com/starford/bibtidy/internal/library"
	"github.com/starford/bibtidy/internal/storage"
)

const schemaURI = "bibtidy://entry-schema"

// Server wraps the MCP server with bibtidy tools.
type Server struct {
	mcp   *server.MCPServer
	lib   *library.Service
	store storage.Provider
}

// New creates a new MCP server with all bibtidy tools registered.
func New(lib *library.Service, store storage.Provider) *Server {
	s := &Server{lib: lib, store: store}

	s.mcp = server.NewMCPServer(
		"bibtidy",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("parse_bibtex",
		mcp.WithDescription("Parse BibTeX text into JSON records without linting."),
		mcp.WithString("text", mcp.Required(), mcp.Description("BibTeX source text")),
	), s.parseBibtex)

	s.mcp.AddTool(mcp.NewTool("lint_bibtex",
		mcp.WithDescription("Parse and lint BibTeX text. Returns JSON records with normalized "+
			"types, fields in schema order and a warnings list per entry."),
		mcp.WithString("text", mcp.Required(), mcp.Description("BibTeX source text")),
	), s.lintBibtex)

	s.mcp.AddTool(mcp.NewTool("format_bibtex",
		mcp.WithDescription("Parse, lint and re-serialize BibTeX text in canonical form."),
		mcp.WithString("text", mcp.Required(), mcp.Description("BibTeX source text")),
	), s.formatBibtex)

	s.mcp.AddTool(mcp.NewTool("import_bibtex",
		mcp.WithDescription("Import BibTeX text into the library. With save_as the text is also "+
			"written to the library directory as a .bib file and tracked as its source. "+
			"Read the format guide first via get_entry_schema or the "+schemaURI+" resource."),
		mcp.WithString("text", mcp.Required(), mcp.Description("BibTeX source text")),
		mcp.WithString("name", mcp.Description("Label for the import (defaults to \"mcp\")")),
		mcp.WithString("save_as", mcp.Description("Optional relative path ending in .bib")),
	), s.importBibtex)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List library records in display order."),
		mcp.WithString("type", mcp.Description("Only records of this type")),
		mcp.WithBoolean("selected", mcp.Description("Only selected records")),
		mcp.WithNumber("limit", mcp.Description("Page size (0 for all)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listRecords)

	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Search records by citation key, type or field text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchRecords)

	s.mcp.AddTool(mcp.NewTool("export_bibtex",
		mcp.WithDescription("Serialize library records to BibTeX text."),
		mcp.WithString("ids", mcp.Description("Comma-separated record IDs (empty for all)")),
		mcp.WithBoolean("selected", mcp.Description("Export only selected records")),
	), s.exportBibtex)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the .bib files in the library directory."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listSources)

	s.mcp.AddTool(mcp.NewTool("read_source",
		mcp.WithDescription("Read the raw text of a .bib file in the library directory."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the file")),
	), s.readSource)

	s.mcp.AddTool(mcp.NewTool("get_entry_schema",
		mcp.WithDescription("Returns the BibTeX entry format guide, or the schema of one entry type as JSON."),
		mcp.WithString("type", mcp.Description("Optional entry type")),
	), s.getEntrySchema)

	s.mcp.AddResource(
		mcp.NewResource(schemaURI, "Entry Schema",
			mcp.WithResourceDescription("Entry types with their required and recommended fields."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readEntrySchemaResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) parseBibtex(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recs, err := bibtex.Parse(text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(recs), nil
}

func (s *Server) lintBibtex(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recs, err := bibtex.ParseAndLint(text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(recs), nil
}

func (s *Server) formatBibtex(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recs, err := bibtex.ParseAndLint(text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := bibtex.Serialize(recs)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) importBibtex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if saveAs := req.GetString("save_as", ""); saveAs != "" {
		if !strings.EqualFold(path.Ext(saveAs), ".bib") {
			return mcp.NewToolResultError("save_as must end with .bib"), nil
		}
		if _, readErr := s.store.Read(saveAs); readErr == nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", saveAs, apperr.ErrAlreadyExists)), nil
		}
		// Parse first so a broken file never lands on disk.
		if _, err := bibtex.Parse(text); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data := []byte(text)
		if err := s.store.Write(saveAs, data); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		n, err := s.lib.ImportSource(ctx, saveAs, data)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("saved %s: %d records", saveAs, n)), nil
	}

	items, err := s.lib.Import(ctx, req.GetString("name", "mcp"), text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items), nil
}

func (s *Server) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := library.Filter{
		Type:   req.GetString("type", ""),
		Limit:  req.GetInt("limit", 0),
		Offset: req.GetInt("offset", 0),
	}
	if req.GetBool("selected", false) {
		yes := true
		f.Selected = &yes
	}
	items, total, err := s.lib.List(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"records": items, "total": total}), nil
}

func (s *Server) searchRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.lib.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items), nil
}

func (s *Server) exportBibtex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	er := library.ExportRequest{SelectedOnly: req.GetBool("selected", false)}
	for _, id := range strings.Split(req.GetString("ids", ""), ",") {
		if id = strings.TrimSpace(id); id != "" {
			er.IDs = append(er.IDs, id)
		}
	}
	out, err := s.lib.Export(ctx, er)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out.Content), nil
}

func (s *Server) listSources(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.store.List(req.GetString("folder", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths := make([]string, 0, len(metas))
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) readSource(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", p)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) getEntrySchema(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typ := req.GetString("type", "")
	if typ == "" {
		return mcp.NewToolResultText(EntrySchemaGuide()), nil
	}
	schema, ok := bibtex.LookupSchema(typ)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown entry type: %s", typ)), nil
	}
	return jsonResult(bibtex.NamedSchema{Name: typ, EntrySchema: schema}), nil
}

func (s *Server) readEntrySchemaResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      schemaURI,
			MIMEType: "text/markdown",
			Text:     EntrySchemaGuide(),
		},
	}, nil
}
