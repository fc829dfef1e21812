//go:build windows

package serverrun

import (
	"context"

	"github.com/rzbill/flagstream/internal/runtime"
	logpkg "github.com/rzbill/flagstream/pkg/log"
)

// watchLifecycle is a no-op; there are no user signals to map.
func watchLifecycle(context.Context, *runtime.Runtime, logpkg.Logger) func() {
	return func() {}
}
