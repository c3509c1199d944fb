package hooks

import (
	"fmt"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
)

// Common hook errors.
var (
	// ErrHookTypeEmpty is returned when a hook type is empty.
	ErrHookTypeEmpty = fmt.Errorf("hook type cannot be empty")

	// ErrHookLoad is returned when a hook script cannot be loaded.
	ErrHookLoad = fmt.Errorf("failed to load hook")

	// ErrHookExecution is returned when there's an error executing a hook.
	ErrHookExecution = pkgerrors.ErrHookExecution

	// ErrHookScript is returned when a hook script sets err.
	ErrHookScript = pkgerrors.ErrHookScript
)

// ErrUnsupportedHookType is returned when a hook file names an unknown type.
func ErrUnsupportedHookType(name string) error {
	return pkgerrors.Wrapf(ErrHookLoad, "unsupported hook type: %s", name)
}
