package protocol

// Color is the display color named by a SendColor message.
type Color uint8

const (
	ColorFallback Color = iota
	ColorRed
	ColorBlue
	ColorGreen
)

// Palette is the set of names a peer picks from when it sends a color.
var Palette = []string{"red", "blue", "green"}

// ParseColor maps a wire color name to a Color. Unrecognized names map to
// ColorFallback.
func ParseColor(name string) Color {
	switch name {
	case "red":
		return ColorRed
	case "blue":
		return ColorBlue
	case "green":
		return ColorGreen
	default:
		return ColorFallback
	}
}

func (c Color) String() string {
	switch c {
	case ColorRed:
		return "red"
	case ColorBlue:
		return "blue"
	case ColorGreen:
		return "green"
	default:
		return "magenta"
	}
}
