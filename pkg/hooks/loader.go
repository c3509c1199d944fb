package hooks

import (
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
)

// HookFileExtension is the extension of hook script files.
const HookFileExtension = ".tengo"

// LoadHookFile registers the script at path for hookType. An empty path is a no-op.
func LoadHookFile(manager HookManager, hookType HookType, path string) error {
	if path == "" {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return pkgerrors.Wrapf(ErrHookLoad, "error reading hook file %s: %v", path, err)
	}
	if err := manager.AddHook(Hook{Type: hookType, Content: string(content)}); err != nil {
		return pkgerrors.Wrapf(err, "error adding hook %s", hookType)
	}
	return nil
}

// LoadHooksFromDir loads every <hook-type>.tengo file of dir. Files with another
// extension are ignored; an unknown hook type is an error.
func LoadHooksFromDir(manager HookManager, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return pkgerrors.Wrapf(ErrHookLoad, "failed to read hooks directory %s: %v", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != HookFileExtension {
			continue
		}

		hookName := strings.TrimSuffix(entry.Name(), HookFileExtension)
		hookType := HookType(hookName)
		switch hookType {
		case PostResource, PostRun:
		default:
			return ErrUnsupportedHookType(hookName)
		}

		if err := LoadHookFile(manager, hookType, filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

// HookTemplate generates a template for a hook script.
func HookTemplate(hookType HookType) string {
	switch hookType {
	case PostResource:
		return `// Post-resource hook
// This script runs once per attempted resource.
// Available variables:
// - kind: string - scans, freesurfer or pup
// - subjectID, subjectLabel: string - the subject being processed
// - resourceID, typeName: string - the resource
// - resourceDir: string - canonical directory of the resource
// - status: string - downloaded, not_found, download_failed or unpack_failed
// - detail: string - failure detail, empty on success
// Set err to a non-empty string to report a failure.

// Example: record finished resources
/*
fmt := import("fmt")
if status == "downloaded" {
    fmt.println(subjectLabel + " " + typeName + " -> " + resourceDir)
}
*/`

	case PostRun:
		return `// Post-run hook
// This script runs once after the last subject.
// Available variables:
// - kind: string - scans, freesurfer or pup
// - downloaded, failed: int - resource counts of the run
`

	default:
		return "// Unknown hook type: " + string(hookType)
	}
}
