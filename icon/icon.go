// Package icon provides a flexible multi-variant rendering engine for UI symbols and feedback indicators.
package icon

import (
	"github.com/reelfeed/reelfeed/key"
	"github.com/spf13/viper"
)

// Visual Variant Constants - these define the supported aesthetic styles for icon rendering.
const (
	emoji   = "emoji"
	plain   = "plain"
	squares = "squares"
)

// AvailableVariants returns a slice of all registered icon style identifiers.
func AvailableVariants() []string {
	return []string{emoji, plain, squares}
}

// Icon identifies a renderable UI symbol.
type Icon int

const (
	Success Icon = iota
	Fail
	Progress
	Lightning
)

// iconDef encapsulates the visual representations of a single UI symbol across all supported variants.
type iconDef struct {
	emoji   string
	plain   string
	squares string
}

var icons = map[Icon]iconDef{
	Success:   {emoji: "✅", plain: "[ok]", squares: "🟩"},
	Fail:      {emoji: "❌", plain: "[fail]", squares: "🟥"},
	Progress:  {emoji: "⏳", plain: "[..]", squares: "🟨"},
	Lightning: {emoji: "⚡", plain: "[!]", squares: "🟪"},
}

// Get retrieves the visual representation for the receiver iconDef based on the global icons variant configuration.
func (d iconDef) Get() string {
	switch viper.GetString(key.IconsVariant) {
	case emoji:
		return d.emoji
	case plain:
		return d.plain
	case squares:
		return d.squares
	default:
		return d.plain
	}
}

// Get returns the rendered string for a specified Icon identifier from the global registry.
func Get(i Icon) string {
	return icons[i].Get()
}
