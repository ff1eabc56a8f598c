// Package mapper implements spec.md §4.E: a Mapper converts between the
// data model's entity shape and a connector's external representation; a
// Formatter renders an entity to a display/transport string. Grounded on
// the teacher's scriptNode (internal/service/workflow/nodes/script.go) for
// ScriptMapper's goja.New()+RunString()+Export() pattern, and render.go
// (internal/render/render.go) for TemplateFormatter's mugo templatex usage.
package mapper

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/rytsh/mugo/templatex"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/render"
)

// Mapper converts a value from one shape to another. ToExternal and
// FromExternal are named for the two directions the sync engine needs
// (spec.md §4.G); a connector-facing Mapper need only implement the
// direction(s) its role actually uses.
type Mapper interface {
	ToExternal(src any) (any, error)
	FromExternal(src any) (any, error)
}

// Formatter renders a value to a display string, used by notification
// connectors (email/discord/telegram) to turn an entity into message text.
type Formatter interface {
	Format(src any) (string, error)
}

// Func adapts two plain functions to the Mapper interface.
type Func struct {
	To   func(any) (any, error)
	From func(any) (any, error)
}

func (f Func) ToExternal(src any) (any, error) {
	if f.To == nil {
		return src, nil
	}
	return f.To(src)
}

func (f Func) FromExternal(src any) (any, error) {
	if f.From == nil {
		return src, nil
	}
	return f.From(src)
}

// ScriptMapper runs user-supplied JavaScript (via goja) to transform a
// value, for connectors whose external shape can't be expressed as a
// static Go type. toScript/fromScript are each wrapped in an IIFE and
// receive the input as the `data` global, matching the teacher's scriptNode
// convention of injecting inputs as named globals and reading the
// expression's return value via val.Export().
type ScriptMapper struct {
	ToScript   string
	FromScript string
}

func (m ScriptMapper) ToExternal(src any) (any, error) {
	return runScript(m.ToScript, src)
}

func (m ScriptMapper) FromExternal(src any) (any, error) {
	return runScript(m.FromScript, src)
}

func runScript(code string, data any) (any, error) {
	if code == "" {
		return data, nil
	}

	vm := goja.New()
	if err := vm.Set("data", data); err != nil {
		return nil, fmt.Errorf("mapper: bind data: %w", apperr.ErrMapping)
	}

	val, err := vm.RunString("(function(){" + code + "})()")
	if err != nil {
		return nil, fmt.Errorf("mapper: script error: %w", apperr.ErrMapping)
	}
	return val.Export(), nil
}

// TemplateFormatter renders src through a Go text/template string via
// internal/render's mugo-backed ExecuteWithData helper.
type TemplateFormatter struct {
	Template string
}

func (f TemplateFormatter) Format(src any) (string, error) {
	out, err := render.ExecuteWithData(f.Template, src, templatex.WithExecFuncMap(nil))
	if err != nil {
		return "", fmt.Errorf("mapper: template: %w", apperr.ErrMapping)
	}
	return string(out), nil
}

// Chain composes mappers so To/From run in sequence (to = left-to-right,
// from = right-to-left), letting a connector stack a structural mapper with
// a ScriptMapper without a bespoke type per combination.
type Chain []Mapper

func (c Chain) ToExternal(src any) (any, error) {
	cur := src
	for _, m := range c {
		next, err := m.ToExternal(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (c Chain) FromExternal(src any) (any, error) {
	cur := src
	for i := len(c) - 1; i >= 0; i-- {
		next, err := c[i].FromExternal(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
