// Package lsp serves the rooting analyzers' findings to editors as
// diagnostics.
package lsp

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/rooted/lint"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "rooted-lsp"

var log = commonlog.GetLogger("rooted.lsp")

// Server lints the package of every opened or saved Go file and publishes
// the findings.
type Server struct {
	opts lint.Options

	mu   sync.Mutex
	docs map[protocol.DocumentUri]string // URI → full document content

	// lintMu serializes lint runs: the analyzers' flags are global.
	lintMu sync.Mutex

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// New creates a server that lints with opts. opts.Dir and opts.Overlay are
// set per run.
func New(opts lint.Options) *Server {
	s := &Server{
		opts:    opts,
		docs:    make(map[protocol.DocumentUri]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidSave:   s.textDocumentDidSave,
		TextDocumentDidClose:  s.textDocumentDidClose,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *Server) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "rooted LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
		Save:      true,
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *Server) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	s.docs[uri] = params.TextDocument.Text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri)
	return nil
}

// textDocumentDidChange only records the text: loading a package on every
// keystroke is too slow, so findings refresh on save.
func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[uri] = whole.Text
			s.mu.Unlock()
		}
	}
	return nil
}

func (s *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	uri := params.TextDocument.URI
	if params.Text != nil {
		s.mu.Lock()
		s.docs[uri] = *params.Text
		s.mu.Unlock()
	}
	s.publishDiagnostics(ctx, uri)
	return nil
}

func (s *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Diagnostics ---

func (s *Server) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri) {
	path, ok := pathFromURI(uri)
	if !ok || !strings.HasSuffix(path, ".go") {
		return
	}

	byFile, err := s.diagnose(context.Background(), path)
	if err != nil {
		log.Warningf("linting %s: %s", path, err)
		return
	}

	// Publish for every open document in the package, so fixing a file
	// also clears findings shown in its siblings.
	s.mu.Lock()
	var uris []protocol.DocumentUri
	for open := range s.docs {
		if p, ok := pathFromURI(open); ok && filepath.Dir(p) == filepath.Dir(path) {
			uris = append(uris, open)
		}
	}
	s.mu.Unlock()

	for _, u := range uris {
		p, _ := pathFromURI(u)
		diagnostics := byFile[p]
		if diagnostics == nil {
			diagnostics = []protocol.Diagnostic{}
		}
		go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
			URI:         u,
			Diagnostics: diagnostics,
		})
	}
}

// diagnose lints the package containing path, with the text of every open
// document overlaid, and returns diagnostics keyed by file path.
func (s *Server) diagnose(ctx context.Context, path string) (map[string][]protocol.Diagnostic, error) {
	overlay := make(map[string][]byte)
	s.mu.Lock()
	for uri, text := range s.docs {
		if p, ok := pathFromURI(uri); ok {
			overlay[p] = []byte(text)
		}
	}
	s.mu.Unlock()

	opts := s.opts
	opts.Dir = filepath.Dir(path)
	opts.Overlay = overlay
	opts.Tests = opts.Tests || strings.HasSuffix(path, "_test.go")

	s.lintMu.Lock()
	findings, err := lint.Run(ctx, []string{"."}, opts)
	s.lintMu.Unlock()
	if err != nil {
		return nil, err
	}

	byFile := make(map[string][]protocol.Diagnostic)
	for _, f := range findings {
		byFile[f.Pos.Filename] = append(byFile[f.Pos.Filename], toDiagnostic(f))
	}
	return byFile, nil
}

// toDiagnostic converts a finding. token positions are 1-based; LSP
// positions are 0-based.
func toDiagnostic(f lint.Finding) protocol.Diagnostic {
	pos := protocol.Position{}
	if f.Pos.Line > 0 {
		pos.Line = protocol.UInteger(f.Pos.Line - 1)
	}
	if f.Pos.Column > 0 {
		pos.Character = protocol.UInteger(f.Pos.Column - 1)
	}
	severity := protocol.DiagnosticSeverityError
	source := lspName
	code := protocol.IntegerOrString{Value: f.Analyzer}
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: pos, End: pos},
		Severity: &severity,
		Code:     &code,
		Source:   &source,
		Message:  f.Message,
	}
}

// pathFromURI returns the file path of a file:// URI.
func pathFromURI(uri protocol.DocumentUri) (string, bool) {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

func boolPtr(b bool) *bool {
	return &b
}
