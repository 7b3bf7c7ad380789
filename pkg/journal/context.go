// Package journal implements the compound journal rule engine: context
// assembly, condition gating, template resolution, entry synthesis, and
// recurrence scheduling.
package journal

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Context is the immutable key-value snapshot one run evaluates against.
// It is assembled once per run and frozen for the duration of the condition
// and resolution pass, so evaluation is deterministic.
type Context struct {
	keys   []string
	values map[string]string
}

// BuildContext merges, in increasing precedence, the definition's default
// context, document-derived fields, and explicit per-run overrides. Keys
// are case-sensitive; within each layer keys merge in sorted order so the
// snapshot ordering is stable.
func BuildContext(defaults, docFields, overrides map[string]string) *Context {
	ctx := &Context{values: make(map[string]string)}

	for _, layer := range []map[string]string{defaults, docFields, overrides} {
		layerKeys := make([]string, 0, len(layer))
		for key := range layer {
			layerKeys = append(layerKeys, key)
		}

		sort.Strings(layerKeys)

		for _, key := range layerKeys {
			if _, seen := ctx.values[key]; !seen {
				ctx.keys = append(ctx.keys, key)
			}

			ctx.values[key] = layer[key]
		}
	}

	return ctx
}

// Lookup returns the raw value for key and whether the key is present.
// Presence is independent of the value; an empty string still exists.
func (c *Context) Lookup(key string) (string, bool) {
	value, ok := c.values[key]

	return value, ok
}

// Decimal parses the value for key as a decimal. The second return is
// false when the key is absent or the value does not parse.
func (c *Context) Decimal(key string) (decimal.Decimal, bool) {
	raw, ok := c.values[key]
	if !ok {
		return decimal.Zero, false
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}

	return value, true
}

// Keys returns the keys in their merged order.
func (c *Context) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)

	return out
}

// Snapshot returns a copy of the full mapping for audit logging.
func (c *Context) Snapshot() map[string]string {
	out := make(map[string]string, len(c.values))
	for key, value := range c.values {
		out[key] = value
	}

	return out
}
