package model

import (
	"fmt"
	"strconv"
	"strings"
)

// AshLuminance converts a #RRGGBB ash colour reading to perceived luminance
// (0.299r + 0.587g + 0.114b) on a 0-255 scale. The leading '#' is optional.
func AshLuminance(hex string) (float64, error) {
	h := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(h) != 6 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}
	rgb, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}
	r := float64((rgb >> 16) & 0xff)
	g := float64((rgb >> 8) & 0xff)
	b := float64(rgb & 0xff)
	return 0.299*r + 0.587*g + 0.114*b, nil
}

// ValidColor reports whether s is a #RRGGBB colour.
func ValidColor(s string) bool {
	_, err := AshLuminance(s)
	return err == nil
}
