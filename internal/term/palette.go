package term

// ansi16 is the xterm rendition of the 16 base colors: indices 0-7 are
// the normal set, 8-15 the bright set.
var ansi16 = [16]uint32{
	PackRGB(0x00, 0x00, 0x00), // black
	PackRGB(0xCD, 0x00, 0x00), // red
	PackRGB(0x00, 0xCD, 0x00), // green
	PackRGB(0xCD, 0xCD, 0x00), // yellow
	PackRGB(0x00, 0x00, 0xEE), // blue
	PackRGB(0xCD, 0x00, 0xCD), // magenta
	PackRGB(0x00, 0xCD, 0xCD), // cyan
	PackRGB(0xE5, 0xE5, 0xE5), // white
	PackRGB(0x7F, 0x7F, 0x7F), // bright black
	PackRGB(0xFF, 0x00, 0x00), // bright red
	PackRGB(0x00, 0xFF, 0x00), // bright green
	PackRGB(0xFF, 0xFF, 0x00), // bright yellow
	PackRGB(0x5C, 0x5C, 0xFF), // bright blue
	PackRGB(0xFF, 0x00, 0xFF), // bright magenta
	PackRGB(0x00, 0xFF, 0xFF), // bright cyan
	PackRGB(0xFF, 0xFF, 0xFF), // bright white
}

// cubeLevels are the six channel values of the xterm 6x6x6 color cube.
var cubeLevels = [6]uint8{0x00, 0x5F, 0x87, 0xAF, 0xD7, 0xFF}

// Color256 maps an xterm 256-color index to a packed color:
// 0-15 base palette, 16-231 the 6x6x6 cube, 232-255 the grayscale ramp.
func Color256(n uint8) uint32 {
	switch {
	case n < 16:
		return ansi16[n]
	case n < 232:
		i := int(n) - 16
		r := cubeLevels[i/36]
		g := cubeLevels[(i/6)%6]
		b := cubeLevels[i%6]
		return PackRGB(r, g, b)
	default:
		v := uint8(8 + 10*(int(n)-232))
		return PackRGB(v, v, v)
	}
}
