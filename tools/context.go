// Package tools implements the closed, typed tool set dispatched by the
// orchestrator (spec §4.3): a pure-function contract `(args, ToolContext) ->
// (result, error)` per tool, validated against a compiled JSON schema before
// execution. Grounded on the teacher's tools.ToolSpec metadata shape
// (agents/runtime/tools/tools.go) and the jsonschema/v6 validation pattern
// demonstrated in codegen/agent/tests/tool_specs_schema_validation_test.go
// and registry/service.go.
package tools

import (
	"time"

	"github.com/worldforge/core/canvas"
	"github.com/worldforge/core/ids"
	"github.com/worldforge/core/store"
)

// Context is the uniform capability bundle every tool executor receives
// (spec §4.3: `ToolContext = {userId, db, blob, imageProvider, canvas,
// now}`).
type Context struct {
	UserID  ids.UserID
	DB      store.DB
	Blob    store.Blob
	Images  *ImageProviders
	Canvas  *canvas.Manager
	Now     func() time.Time
}

func (c Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
