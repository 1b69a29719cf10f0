package gate

import (
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Gate names, in pipeline order.
const (
	GateEntrypoint   = "entrypoint"
	GatePlaceholder  = "placeholder"
	GateAssetLinks   = "asset-links"
	GateRuntimeError = "runtime-errors"
)

// DefaultGates returns the standard pipeline for generated web projects.
func DefaultGates() []Gate {
	return []Gate{
		EntrypointGate{},
		PlaceholderGate{},
		AssetLinkGate{},
		RuntimeErrorGate{},
	}
}

// EntrypointGate requires a non-empty index.html at the artifact root.
type EntrypointGate struct{}

func (EntrypointGate) Name() string { return GateEntrypoint }

func (EntrypointGate) Check(fsys billy.Filesystem, cwd string, _ *Context) Result {
	info, err := fsys.Stat(path.Join(cwd, "index.html"))
	if err != nil {
		return Result{Name: GateEntrypoint, Pass: false, Message: "index.html does not exist"}
	}
	if info.Size() == 0 {
		return Result{Name: GateEntrypoint, Pass: false, Message: "index.html is empty"}
	}
	return Result{Name: GateEntrypoint, Pass: true}
}

// placeholderPatterns are markers that indicate unfinished content.
var placeholderPatterns = []string{"lorem ipsum", "todo:", "fixme:"}

// artifactExts are the file types the placeholder scan covers.
var artifactExts = map[string]bool{".html": true, ".css": true, ".js": true}

// PlaceholderGate fails when generated html/css/js still contains
// placeholder markers.
type PlaceholderGate struct{}

func (PlaceholderGate) Name() string { return GatePlaceholder }

func (PlaceholderGate) Check(fsys billy.Filesystem, cwd string, _ *Context) Result {
	var offenders []string
	err := util.Walk(fsys, cwd, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !artifactExts[strings.ToLower(path.Ext(p))] {
			return nil
		}
		data, err := util.ReadFile(fsys, p)
		if err != nil {
			return nil
		}
		content := strings.ToLower(string(data))
		for _, pat := range placeholderPatterns {
			if strings.Contains(content, pat) {
				offenders = append(offenders, fmt.Sprintf("%s (%q)", p, pat))
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return Result{Name: GatePlaceholder, Pass: false, Message: fmt.Sprintf("scan failed: %v", err)}
	}
	if len(offenders) > 0 {
		return Result{
			Name:    GatePlaceholder,
			Pass:    false,
			Message: "placeholder text remains in: " + strings.Join(offenders, ", "),
		}
	}
	return Result{Name: GatePlaceholder, Pass: true}
}

// assetRefPattern extracts src/href attribute values from markup.
var assetRefPattern = regexp.MustCompile(`(?i)(?:src|href)\s*=\s*["']([^"']+)["']`)

// AssetLinkGate verifies that every local src/href reference in index.html
// resolves to a file in the artifact tree. External and anchor references
// are ignored.
type AssetLinkGate struct{}

func (AssetLinkGate) Name() string { return GateAssetLinks }

func (AssetLinkGate) Check(fsys billy.Filesystem, cwd string, _ *Context) Result {
	data, err := util.ReadFile(fsys, path.Join(cwd, "index.html"))
	if err != nil {
		// Missing entrypoint is the entrypoint gate's finding, not ours.
		return Result{Name: GateAssetLinks, Pass: true}
	}

	var missing []string
	for _, m := range assetRefPattern.FindAllStringSubmatch(string(data), -1) {
		ref := strings.TrimSpace(m[1])
		if !isLocalRef(ref) {
			continue
		}
		ref = strings.SplitN(ref, "?", 2)[0]
		ref = strings.SplitN(ref, "#", 2)[0]
		if ref == "" {
			continue
		}
		if _, err := fsys.Stat(path.Join(cwd, ref)); err != nil {
			missing = append(missing, ref)
		}
	}
	if len(missing) > 0 {
		return Result{
			Name:    GateAssetLinks,
			Pass:    false,
			Message: "broken local references: " + strings.Join(missing, ", "),
		}
	}
	return Result{Name: GateAssetLinks, Pass: true}
}

func isLocalRef(ref string) bool {
	switch {
	case ref == "", strings.HasPrefix(ref, "#"):
		return false
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return false
	case strings.HasPrefix(ref, "//"), strings.HasPrefix(ref, "data:"), strings.HasPrefix(ref, "mailto:"):
		return false
	}
	return true
}

// RuntimeErrorGate fails when the shared gate context collected runtime
// errors while the artifact was exercised.
type RuntimeErrorGate struct{}

func (RuntimeErrorGate) Name() string { return GateRuntimeError }

func (RuntimeErrorGate) Check(_ billy.Filesystem, _ string, gctx *Context) Result {
	errs := gctx.RuntimeErrors()
	if len(errs) == 0 {
		return Result{Name: GateRuntimeError, Pass: true}
	}
	shown := errs
	if len(shown) > 3 {
		shown = shown[:3]
	}
	return Result{
		Name:    GateRuntimeError,
		Pass:    false,
		Message: fmt.Sprintf("%d runtime error(s): %s", len(errs), strings.Join(shown, "; ")),
	}
}
