package domain

// palette is ordered; ColorFor indexes it by user id.
var palette = [...]string{
	"#ef4444",
	"#f97316",
	"#f59e0b",
	"#84cc16",
	"#22c55e",
	"#14b8a6",
	"#06b6d4",
	"#3b82f6",
	"#6366f1",
	"#8b5cf6",
	"#a855f7",
	"#d946ef",
	"#ec4899",
	"#f43f5e",
}

// PaletteSize is the number of distinct presence colors.
const PaletteSize = len(palette)

// Palette returns a copy of the presence palette in index order.
func Palette() []string {
	out := make([]string, PaletteSize)
	copy(out, palette[:])
	return out
}

// ColorFor is a pure function of the id. Collisions are expected once a
// room has more than PaletteSize users.
func ColorFor(id UserID) string {
	i := int64(id) % int64(PaletteSize)
	if i < 0 {
		i += int64(PaletteSize)
	}
	return palette[i]
}
