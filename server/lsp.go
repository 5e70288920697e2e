// Package server implements the Kestrel language server: LSP over stdio
// with batched diagnostics, completion, hover, definition and references.
package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/kestrel/compiler"
	"github.com/chazu/kestrel/stdlib"
	"github.com/chazu/kestrel/types"
	"github.com/chazu/kestrel/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "kestrel-lsp"

var log = commonlog.GetLogger("kestrel.server")

// moduleSymbol is a name a native module declares.
type moduleSymbol struct {
	Module string
	Name   string
	Type   string
	Method bool // array method rather than global
}

// moduleScope collects what a module declares, for completion and hover.
type moduleScope struct {
	module  string
	arena   *types.Arena
	symbols []moduleSymbol
}

func (s *moduleScope) Types() *types.Arena { return s.arena }

func (s *moduleScope) DeclareGlobal(name string, t types.Type) {
	s.symbols = append(s.symbols, moduleSymbol{Module: s.module, Name: name, Type: s.arena.String(t)})
}

func (s *moduleScope) DeclareArrayMethod(name string, t types.Type) {
	s.symbols = append(s.symbols, moduleSymbol{Module: s.module, Name: name, Type: s.arena.String(t), Method: true})
}

func declaredSymbols(reg *vm.Registry) []moduleSymbol {
	var out []moduleSymbol
	for _, name := range reg.Names() {
		mod, _ := reg.Lookup(name)
		scope := &moduleScope{module: name, arena: types.NewArena()}
		mod.Declare(scope)
		out = append(out, scope.symbols...)
	}
	return out
}

// LspServer bridges LSP editor features to the Kestrel compiler via Worker.
type LspServer struct {
	worker  *Worker
	symbols []moduleSymbol

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server analyzing documents with opts. Nil
// modules mean the standard modules.
func NewLSP(opts compiler.Options) *LspServer {
	if opts.Modules == nil {
		opts.Modules = stdlib.Registry()
	}
	s := &LspServer{
		worker:  NewWorker(opts),
		symbols: declaredSymbols(opts.Modules),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("Kestrel LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	s.worker.Do(func(ws *workspace) any {
		delete(ws.units, string(uri))
		return nil
	})

	// Clear diagnostics for the closed document
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := string(params.TextDocument.URI)
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	member := afterDot(text, params.Position, len(prefix))
	if prefix == "" && !member {
		return nil, nil
	}

	result, err := s.worker.Do(func(ws *workspace) any {
		return s.complete(ws.units[uri], prefix, member)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := string(params.TextDocument.URI)
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(ws *workspace) any {
		return s.hover(ws.units[uri], word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(ws *workspace) any {
		return definition(ws.units[string(uri)], uri, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	return references(text, uri, word), nil
}

// --- Analysis-backed logic (called on worker goroutine) ---

func (s *LspServer) complete(unit *compiler.Unit, prefix string, member bool) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if !strings.HasPrefix(label, prefix) {
			return
		}
		insert := label
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &insert,
		})
	}

	if member {
		for _, sym := range s.symbols {
			if sym.Method {
				add(sym.Name, protocol.CompletionItemKindMethod, sym.Type+" (array)")
			}
		}
		return items
	}

	for _, kw := range compiler.Keywords() {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}

	seen := make(map[string]bool)
	if unit != nil {
		for _, g := range unit.Globals {
			seen[g.Name] = true
			kind := protocol.CompletionItemKindVariable
			if g.Const {
				kind = protocol.CompletionItemKindConstant
			}
			add(g.Name, kind, g.Type)
		}
	}

	for _, sym := range s.symbols {
		if sym.Method || seen[sym.Name] {
			continue
		}
		add(sym.Name, protocol.CompletionItemKindFunction, fmt.Sprintf("%s (import %s)", sym.Type, sym.Module))
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func (s *LspServer) hover(unit *compiler.Unit, word string) *protocol.Hover {
	var b strings.Builder

	if g := findGlobal(unit, word); g != nil {
		decl := "var"
		if g.Const {
			decl = "const"
		}
		fmt.Fprintf(&b, "```\n%s %s: %s\n```\n\nglobal declared at line %d", decl, g.Name, g.Type, g.Line)
	} else {
		for _, sym := range s.symbols {
			if sym.Name != word {
				continue
			}
			if sym.Method {
				fmt.Fprintf(&b, "```\n%s: %s\n```\n\narray method from module `%s`", sym.Name, sym.Type, sym.Module)
			} else {
				fmt.Fprintf(&b, "```\n%s: %s\n```\n\nfrom module `%s`", sym.Name, sym.Type, sym.Module)
			}
			break
		}
	}

	if b.Len() == 0 {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func findGlobal(unit *compiler.Unit, name string) *compiler.Symbol {
	if unit == nil {
		return nil
	}
	for i := range unit.Globals {
		if unit.Globals[i].Name == name {
			return &unit.Globals[i]
		}
	}
	return nil
}

// definition locates the declaration of a global in the document.
func definition(unit *compiler.Unit, uri protocol.DocumentUri, word string) []protocol.Location {
	g := findGlobal(unit, word)
	if g == nil || g.Line == 0 {
		return nil
	}
	return []protocol.Location{{
		URI:   uri,
		Range: tokenRange(g.Line, g.Column, g.Name),
	}}
}

// references lists every identifier token spelled word. Shadowed locals
// are included.
func references(text string, uri protocol.DocumentUri, word string) []protocol.Location {
	var locations []protocol.Location
	for _, tok := range compiler.Tokenize(text) {
		if tok.Type == compiler.TokenIdentifier && tok.Lexeme == word {
			locations = append(locations, protocol.Location{
				URI:   uri,
				Range: tokenRange(tok.Line, tok.Column, tok.Lexeme),
			})
		}
	}
	return locations
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(ws *workspace) any {
		return ws.analyze(string(uri), text).Diagnostics
	})
	if err != nil {
		log.Errorf("analysis of %s failed: %s", uri, err)
		return
	}

	diagnostics := toProtocol(result.(compiler.Diagnostics))
	log.Debugf("%s: publishing %d diagnostics", uri, len(diagnostics))
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// toProtocol converts every diagnostic of a batch, keeping the message id
// as the diagnostic code.
func toProtocol(ds compiler.Diagnostics) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(ds))
	severity := protocol.DiagnosticSeverityError
	source := lspName
	for _, d := range ds {
		out = append(out, protocol.Diagnostic{
			Range:    tokenRange(d.Line, d.Column, d.Token),
			Severity: &severity,
			Code:     &protocol.IntegerOrString{Value: d.MessageID},
			Source:   &source,
			Message:  d.Message,
		})
	}
	return out
}

// tokenRange converts a 1-based token position to an LSP range covering
// the token, at least one character wide.
func tokenRange(line, column int, token string) protocol.Range {
	l := protocol.UInteger(max(line-1, 0))
	c := protocol.UInteger(max(column-1, 0))
	width := protocol.UInteger(max(len(token), 1))
	return protocol.Range{
		Start: protocol.Position{Line: l, Character: c},
		End:   protocol.Position{Line: l, Character: c + width},
	}
}

// --- Text extraction helpers ---

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// lineAt returns the line under pos and the cursor column clamped to it.
func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}

	return line[start:col]
}

// afterDot reports whether the prefix of length n before the cursor
// follows a '.', i.e. completes a member name.
func afterDot(text string, pos protocol.Position, n int) bool {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return false
	}
	i := col - n - 1
	return i >= 0 && line[i] == '.'
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentRune(rune(line[end])) {
		end++
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
