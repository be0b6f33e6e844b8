package thingpad

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func htmlDoc(body string) string {
	return "<!DOCTYPE html><html><head><title>doc</title></head><body>" + body + "</body></html>"
}

func TestNew_CreatesStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath)
	require.NoError(t, err)
	defer e.Close()

	require.NotNil(t, e.Store())
	require.NoError(t, e.Store().SetMetadata("k", "v"))
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/dir/db.sqlite")
	require.Error(t, err)
}

func TestClose_WithoutStore(t *testing.T) {
	e, err := New("")
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestWithLanguages(t *testing.T) {
	e, err := New("", WithLanguages("js"))
	require.NoError(t, err)
	langs := e.Languages()
	require.Len(t, langs, 1)
	assert.Equal(t, "javascript", langs[0].Name())

	p, err := e.ParsePage(context.Background(), strings.NewReader(htmlDoc(
		`<section class="thing risor"><textarea class="risor-code">return 1</textarea><pre class="risor-output"></pre><canvas class="risor-canvas"></canvas></section>`,
	)))
	require.NoError(t, err)
	assert.Empty(t, p.Widgets())

	_, err = New("", WithLanguages("cobol"))
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	e, err := New("")
	require.NoError(t, err)
	diags, err := e.Check(context.Background(), "return (;")
	require.NoError(t, err)
	require.NotEmpty(t, diags)
	assert.Equal(t, 1, diags[0].Line)
}

func TestSettingsChanged(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	in := t.TempDir()
	out := t.TempDir()
	path := writeFile(t, in, "a.html", htmlDoc(jsBlock("return 1;")))

	e, err := New(dbPath, WithTimeout(time.Second))
	require.NoError(t, err)
	assert.True(t, e.SettingsChanged())
	_, err = e.BuildFiles(context.Background(), []string{path}, out)
	require.NoError(t, err)
	assert.False(t, e.SettingsChanged())
	require.NoError(t, e.Close())

	e2, err := New(dbPath, WithTimeout(2*time.Second))
	require.NoError(t, err)
	defer e2.Close()
	assert.True(t, e2.SettingsChanged())

	// The settings feed the content hash, so the document is rebuilt.
	res, err := e2.BuildFiles(context.Background(), []string{path}, out)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Built)
}

func TestBuildFiles_NeedsStore(t *testing.T) {
	e, err := New("")
	require.NoError(t, err)
	_, err = e.BuildFiles(context.Background(), nil, t.TempDir())
	assert.ErrorIs(t, err, ErrNoStore)
}

func testBuildFiles(t *testing.T, parallel bool) {
	ctx := context.Background()
	e := newTestEngine(t, WithParallel(parallel))
	in := t.TempDir()
	out := t.TempDir()

	page := writeFile(t, in, "page.html", htmlDoc(jsBlock("return 1+1;")+jsBlock(`throw new Error("bad")`)))
	notes := writeFile(t, in, "notes.md", "# Notes\n\n```js-thing\nreturn 'md';\n```\n")
	skip := writeFile(t, in, "readme.txt", "not a document")

	res, err := e.BuildFiles(ctx, []string{page, notes, skip}, out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Built)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, res.Widgets)
	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, []string{filepath.Join(out, "page.html"), filepath.Join(out, "notes.html")}, res.Outputs)

	built, err := os.ReadFile(filepath.Join(out, "page.html"))
	require.NoError(t, err)
	assert.Contains(t, string(built), `<pre class="js-output">2</pre>`)
	assert.Contains(t, string(built), "bad")
	assert.Contains(t, string(built), "data-snapshot=")

	md, err := os.ReadFile(filepath.Join(out, "notes.html"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "&#34;md&#34;")

	doc, err := e.Store().DocumentByPath(page)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Positive(t, doc.ID)
	assert.Equal(t, 2, doc.Widgets)
	assert.Equal(t, 1, doc.Failures)

	// Second run: unchanged inputs are skipped.
	res, err = e.BuildFiles(ctx, []string{page, notes}, out)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Built)
	assert.Equal(t, 2, res.Skipped)

	// A changed input is rebuilt.
	writeFile(t, in, "page.html", htmlDoc(jsBlock("return 3;")))
	res, err = e.BuildFiles(ctx, []string{page, notes}, out)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Built)
	assert.Equal(t, 0, res.Failures)
}

func TestBuildFiles_Serial(t *testing.T) {
	testBuildFiles(t, false)
}

func TestBuildFiles_Parallel(t *testing.T) {
	testBuildFiles(t, true)
}

func TestBuildFiles_ReadErrorContinues(t *testing.T) {
	e := newTestEngine(t, WithParallel(false))
	in := t.TempDir()
	good := writeFile(t, in, "good.html", htmlDoc(jsBlock("return 1;")))

	res, err := e.BuildFiles(context.Background(), []string{filepath.Join(in, "gone.html"), good}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 error(s)")
	assert.Equal(t, 1, res.Built)
}

func TestBuildDirectory_WalksAndKeepsLayout(t *testing.T) {
	e := newTestEngine(t)
	root := t.TempDir()
	writeFile(t, root, "index.html", htmlDoc(jsBlock("return 1;")))
	writeFile(t, root, "sub/page.md", "```js-thing\nreturn 2;\n```\n")
	writeFile(t, root, "node_modules/x.html", htmlDoc(""))
	writeFile(t, root, ".hidden/y.html", htmlDoc(""))
	out := filepath.Join(root, "_site")

	res, err := e.BuildDirectory(context.Background(), root, out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Built)
	assert.FileExists(t, filepath.Join(out, "index.html"))
	assert.FileExists(t, filepath.Join(out, "sub", "page.html"))

	// The output directory is never read back as input.
	res, err = e.BuildDirectory(context.Background(), root, out)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Built)
	assert.Equal(t, 2, res.Skipped)
}

func TestBuildFiles_FillsReferencedThings(t *testing.T) {
	e := newTestEngine(t)
	th, err := e.AddThing("ns", "js", "return 'ref';")
	require.NoError(t, err)
	in := t.TempDir()
	out := t.TempDir()
	path := writeFile(t, in, "ref.html", htmlDoc(
		`<section class="thing js" data-thing="`+th.ID+`"><textarea class="js-code"></textarea><pre class="js-output"></pre><canvas class="js-canvas"></canvas></section>`,
	))

	_, err = e.BuildFiles(context.Background(), []string{path}, out)
	require.NoError(t, err)
	built, err := os.ReadFile(filepath.Join(out, "ref.html"))
	require.NoError(t, err)
	assert.Contains(t, string(built), "&#34;ref&#34;")
}
