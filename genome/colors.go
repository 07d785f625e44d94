package genome

import "math"

// Color is an RGB triple for species visualisation.
type Color struct {
	R, G, B uint8
}

// speciesColors generates visually distinct colours by spreading hues along
// the golden angle.
func speciesColors() [ByteRange]Color {
	var colors [ByteRange]Color
	goldenAngle := 137.508

	for i := range colors {
		hue := math.Mod(float64(i)*goldenAngle, 360.0)
		r, g, b := hsvToRGB(hue, 0.7, 0.9)
		colors[i] = Color{R: r, G: g, B: b}
	}
	return colors
}

// hsvToRGB converts HSV to RGB.
func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	h = math.Mod(h, 360)
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return uint8((r + m) * 255), uint8((g + m) * 255), uint8((b + m) * 255)
}

// SpeciesColor returns the colour for a species id.
func (t *Tables) SpeciesColor(id uint64) Color {
	return t.Colors[id%ByteRange]
}
