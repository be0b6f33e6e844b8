package thingpad

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/jward/thingpad/internal/logging"
	"github.com/jward/thingpad/internal/script"
	"github.com/jward/thingpad/internal/store"
	"github.com/jward/thingpad/internal/surface"
	"github.com/jward/thingpad/internal/syntax"
)

var (
	// ErrMissingElement marks a block that carries the widget classes but
	// lacks its source input, output sink or surface.
	ErrMissingElement = errors.New("thingpad: missing element")
	// ErrUnknownWidget is returned for a widget id the page does not hold.
	ErrUnknownWidget = errors.New("thingpad: unknown widget")
	// ErrNoStore is returned by operations that need a database when the
	// engine was opened without one.
	ErrNoStore = errors.New("thingpad: engine has no store")
)

// Engine owns the language registry, evaluation settings and the optional
// SQLite store. It parses pages, manages stored things and builds documents.
type Engine struct {
	store    *store.Store
	registry *script.Registry
	log      logging.Logger

	timeout    time.Duration
	maxW, maxH int

	randMu sync.Mutex
	random func() float64

	languages []string // nil means all registered languages

	// useParallel enables the worker pool build pipeline.
	useParallel bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages widgets may use, by name or
// marker.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = append([]string(nil), languages...)
	}
}

// WithParallel controls parallel builds. When true (default), BuildFiles
// renders documents on a worker pool and commits their records serially.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithTimeout bounds each evaluation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithSurfaceLimit caps the size user code can resize a surface to.
func WithSurfaceLimit(maxWidth, maxHeight int) Option {
	return func(e *Engine) {
		e.maxW, e.maxH = maxWidth, maxHeight
	}
}

// WithRand sets the source of the liveness pixel position. It must return
// values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(e *Engine) {
		e.random = fn
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an Engine. When dbPath is non-empty the engine opens (and
// migrates) a SQLite database there; otherwise store-backed operations
// return ErrNoStore.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		log:         logging.Nop(),
		timeout:     script.DefaultTimeout,
		maxW:        4096,
		maxH:        4096,
		random:      rand.New(rand.NewSource(time.Now().UnixNano())).Float64,
		useParallel: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	all := script.DefaultRegistry()
	if e.languages == nil {
		e.registry = all
	} else {
		var langs []script.Language
		for _, name := range e.languages {
			l, err := all.ByKind(name)
			if err != nil {
				return nil, fmt.Errorf("thingpad: %w", err)
			}
			langs = append(langs, l)
		}
		e.registry = script.NewRegistry(langs...)
	}

	if dbPath != "" {
		s, err := store.NewStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("thingpad: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("thingpad: migrate: %w", err)
		}
		e.store = s
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Store returns the underlying Store for direct access. It is nil when the
// engine was opened without a database.
func (e *Engine) Store() *Store {
	return e.store
}

// Languages returns the languages widgets may use.
func (e *Engine) Languages() []script.Language {
	return e.registry.Languages()
}

func (e *Engine) requireStore() (*store.Store, error) {
	if e.store == nil {
		return nil, ErrNoStore
	}
	return e.store, nil
}

func (e *Engine) languageByKind(kind string) (script.Language, error) {
	l, err := e.registry.ByKind(kind)
	if err != nil {
		return nil, fmt.Errorf("thingpad: %w", err)
	}
	return l, nil
}

func (e *Engine) nextRand() float64 {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return e.random()
}

func (e *Engine) env() pageEnv {
	return pageEnv{
		langs: e.registry.Languages(),
		opts:  script.Options{Timeout: e.timeout},
		maxW:  e.maxW,
		maxH:  e.maxH,
		rnd:   e.nextRand,
	}
}

// settings are the engine parameters a built document depends on.
func (e *Engine) settings() map[string]string {
	markers := make([]string, 0)
	for _, l := range e.registry.Languages() {
		markers = append(markers, l.Marker())
	}
	return map[string]string{
		"timeout":   e.timeout.String(),
		"surface":   strconv.Itoa(e.maxW) + "x" + strconv.Itoa(e.maxH),
		"languages": strings.Join(markers, ","),
	}
}

func (e *Engine) settingsHash() string {
	return store.ComputeContentHash(nil, e.settings())
}

// SettingsChanged reports whether the engine settings differ from the ones
// the recorded builds were made with. Returns true when nothing was built
// yet. Changed settings also change every document hash, so the next build
// renders everything again.
func (e *Engine) SettingsChanged() bool {
	if e.store == nil {
		return true
	}
	stored, err := e.store.GetMetadata("settings_hash")
	if err != nil || stored == "" {
		return true
	}
	return stored != e.settingsHash()
}

// storeSettingsHash persists the current settings hash to the database.
func (e *Engine) storeSettingsHash() {
	if err := e.store.SetMetadata("settings_hash", e.settingsHash()); err != nil {
		e.log.Warn("store settings hash", "error", err)
	}
}

// Check reports syntax problems in JavaScript widget code.
func (e *Engine) Check(ctx context.Context, src string) ([]Diagnostic, error) {
	return syntax.Check(ctx, src)
}

// parseDocument parses HTML into a page without running discovery.
func (e *Engine) parseDocument(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("thingpad: parse page: %w", err)
	}
	return newPage(e.env(), doc), nil
}

// ParsePage parses an HTML document and attaches a widget to every block
// marked for a registered language. Blocks that fail setup are logged and
// listed by Page.Problems; the rest of the page still works.
func (e *Engine) ParsePage(ctx context.Context, r io.Reader) (*Page, error) {
	p, err := e.parseDocument(r)
	if err != nil {
		return nil, err
	}
	e.attach(ctx, p)
	return p, nil
}

func (e *Engine) attach(ctx context.Context, p *Page) {
	ws, err := p.Attach(ctx)
	if err != nil {
		e.log.Warn("widget setup failed", "error", err)
	}
	e.log.Debug("page attached", "widgets", len(ws))
}

// NewSurface creates a surface with the engine's size cap, for evaluating
// code outside a page.
func (e *Engine) NewSurface(width, height int) *surface.Canvas {
	c := surface.New(width, height)
	c.SetLimit(e.maxW, e.maxH)
	return c
}

// NewSession opens an interpreter session bound to c.
func (e *Engine) NewSession(kind string, c *surface.Canvas) (script.Session, error) {
	lang, err := e.languageByKind(kind)
	if err != nil {
		return nil, err
	}
	return lang.NewSession(c, script.Options{Timeout: e.timeout}), nil
}

// BuildResult summarises a build.
type BuildResult struct {
	Built    int
	Skipped  int
	Widgets  int
	Failures int
	// Outputs lists the written files in input order.
	Outputs []string
}

// BuildFiles renders the given .html and .md documents into outDir with
// every widget evaluated. Each output is named after its input's base name.
//
// For each file:
//  1. Skip unsupported extensions
//  2. Skip unchanged files (same content and settings hash)
//  3. Fill blocks that reference stored things
//  4. Attach widgets, which evaluates them
//  5. Write the rendered page and record the build
//
// Errors on individual files are collected; processing continues.
func (e *Engine) BuildFiles(ctx context.Context, paths []string, outDir string) (*BuildResult, error) {
	return e.build(ctx, "", paths, outDir)
}

func (e *Engine) build(ctx context.Context, root string, paths []string, outDir string) (*BuildResult, error) {
	if _, err := e.requireStore(); err != nil {
		return nil, err
	}
	var (
		res *BuildResult
		err error
	)
	if e.useParallel {
		res, err = e.buildParallel(ctx, root, paths, outDir)
	} else {
		res, err = e.buildSerial(ctx, root, paths, outDir)
	}
	if err == nil {
		e.storeSettingsHash()
	}
	return res, err
}

func (e *Engine) buildSerial(ctx context.Context, root string, paths []string, outDir string) (*BuildResult, error) {
	res := &BuildResult{}
	var errs []error
	for _, path := range paths {
		item, skip, err := e.prepareFile(root, path, outDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		if skip {
			res.Skipped++
			continue
		}
		doc, err := e.renderFile(ctx, item, e.store)
		if err != nil {
			errs = append(errs, fmt.Errorf("build %s: %w", path, err))
			continue
		}
		res.add(doc)
	}
	if len(errs) > 0 {
		return res, fmt.Errorf("build had %d error(s): %w", len(errs), errs[0])
	}
	return res, nil
}

func (r *BuildResult) add(d *store.Document) {
	r.Built++
	r.Widgets += d.Widgets
	r.Failures += d.Failures
	r.Outputs = append(r.Outputs, d.OutputPath)
}

// buildItem holds everything needed to render one document.
type buildItem struct {
	path    string
	outPath string
	hash    string
	content []byte
}

// prepareFile reads path and decides whether it needs a build.
// Returns (item, skip, error). skip=true means the file is unchanged or
// unsupported.
func (e *Engine) prepareFile(root, path, outDir string) (buildItem, bool, error) {
	if !buildable(path) {
		return buildItem{}, true, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return buildItem{}, false, fmt.Errorf("read file: %w", err)
	}
	hash := store.ComputeContentHash(content, e.settings())

	existing, err := e.store.DocumentByPath(path)
	if err != nil {
		return buildItem{}, false, fmt.Errorf("lookup document: %w", err)
	}
	if existing != nil && existing.Hash == hash {
		return buildItem{}, true, nil // unchanged
	}

	rel := filepath.Base(path)
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil {
			rel = r
		}
	}
	outPath := filepath.Join(outDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".html")
	return buildItem{path: path, outPath: outPath, hash: hash, content: content}, false, nil
}

// renderFile builds one document and records it in ds.
func (e *Engine) renderFile(ctx context.Context, item buildItem, ds store.DataStore) (*store.Document, error) {
	src := item.content
	if isMarkdown(item.path) {
		body, title, err := e.markdownBody(src)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := writeDocument(&buf, documentData{Title: title, Body: body}); err != nil {
			return nil, err
		}
		src = buf.Bytes()
	}
	p, err := e.parseDocument(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	if err := fillThings(p, ds); err != nil {
		e.log.Warn("thing references", "path", item.path, "error", err)
	}
	e.attach(ctx, p)

	var out bytes.Buffer
	if err := p.Render(&out); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(item.outPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(item.outPath, out.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}

	widgets, failures := p.Stats()
	failures += len(p.Problems())
	d := &store.Document{
		Path:       item.path,
		Hash:       item.hash,
		OutputPath: item.outPath,
		Widgets:    widgets,
		Failures:   failures,
		LastBuilt:  time.Now().UTC(),
	}
	if _, err := ds.PutDocument(d); err != nil {
		return nil, fmt.Errorf("record build: %w", err)
	}
	e.log.Info("document built", "path", item.path, "output", item.outPath, "widgets", widgets, "failures", failures)
	return d, nil
}

func buildable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".md", ".markdown":
		return true
	}
	return false
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// skipDirs lists directories excluded from builds.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// BuildDirectory builds every document under root into outDir, keeping the
// directory layout. If root is inside a git repository, uses git ls-files to
// respect .gitignore. Falls back to a filesystem walk (skipping hidden dirs,
// node_modules, vendor, __pycache__) if git is unavailable.
func (e *Engine) BuildDirectory(ctx context.Context, root, outDir string) (*BuildResult, error) {
	paths, err := gitListFiles(root)
	if err != nil {
		// Not a git repo or git not available; fall back to walk.
		paths, err = walkListFiles(root)
		if err != nil {
			return nil, err
		}
	}
	if absOut, err := filepath.Abs(outDir); err == nil {
		paths = excludeDir(paths, absOut)
	}
	return e.build(ctx, root, paths, outDir)
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) documents under root.
func gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if p := filepath.Join(root, line); buildable(p) {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// walkListFiles discovers documents by walking the filesystem.
func walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if buildable(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// excludeDir drops paths inside dir so a build never reads its own output.
func excludeDir(paths []string, dir string) []string {
	out := paths[:0]
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err == nil && (abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator))) {
			continue
		}
		out = append(out, p)
	}
	return out
}
