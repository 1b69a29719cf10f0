package gate

import (
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fsys billy.Filesystem, path, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fsys, path, []byte(content), 0o644))
}

func TestEntrypointGate(t *testing.T) {
	fsys := memfs.New()

	res := EntrypointGate{}.Check(fsys, "/site", nil)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Message, "does not exist")

	writeFile(t, fsys, "/site/index.html", "")
	res = EntrypointGate{}.Check(fsys, "/site", nil)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Message, "empty")

	writeFile(t, fsys, "/site/index.html", "<html><body>hi</body></html>")
	res = EntrypointGate{}.Check(fsys, "/site", nil)
	assert.True(t, res.Pass)
}

func TestPlaceholderGateFlagsMarkers(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, "/site/index.html", "<p>Lorem Ipsum dolor</p>")
	writeFile(t, fsys, "/site/app.js", "// TODO: wire this up")
	writeFile(t, fsys, "/site/notes.txt", "TODO: not an artifact, ignored")

	res := PlaceholderGate{}.Check(fsys, "/site", nil)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Message, "index.html")
	assert.Contains(t, res.Message, "app.js")
	assert.NotContains(t, res.Message, "notes.txt")
}

func TestPlaceholderGatePassesOnCleanTree(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, "/site/index.html", "<h1>Shipping real content</h1>")
	writeFile(t, fsys, "/site/style.css", "body { margin: 0; }")

	res := PlaceholderGate{}.Check(fsys, "/site", nil)
	assert.True(t, res.Pass)
}

func TestAssetLinkGate(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, "/site/index.html", `<html>
<link href="style.css" rel="stylesheet">
<script src="app.js"></script>
<img src="images/hero.png?v=2">
<a href="https://example.com">out</a>
<a href="#top">anchor</a>
</html>`)
	writeFile(t, fsys, "/site/style.css", "body{}")
	writeFile(t, fsys, "/site/images/hero.png", "png")

	res := AssetLinkGate{}.Check(fsys, "/site", nil)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Message, "app.js")
	assert.NotContains(t, res.Message, "style.css")
	assert.NotContains(t, res.Message, "example.com")

	writeFile(t, fsys, "/site/app.js", "console.log('ok')")
	res = AssetLinkGate{}.Check(fsys, "/site", nil)
	assert.True(t, res.Pass)
}

func TestRuntimeErrorGate(t *testing.T) {
	res := RuntimeErrorGate{}.Check(nil, "", nil)
	assert.True(t, res.Pass, "nil context means nothing was observed")

	gctx := &Context{}
	res = RuntimeErrorGate{}.Check(nil, "", gctx)
	assert.True(t, res.Pass)

	gctx.AddRuntimeError("TypeError: x is undefined")
	res = RuntimeErrorGate{}.Check(nil, "", gctx)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Message, "TypeError")
}
