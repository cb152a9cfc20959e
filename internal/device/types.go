package device

import (
	"fmt"
	"strings"
)

// Category groups device types that share a bridge resource and command set.
type Category string

// Supported categories.
const (
	CategoryBulb   Category = "bulbs"
	CategoryPlug   Category = "plugs"
	CategoryCamera Category = "cameras"
)

// typeCategories maps inventory types to their category.
var typeCategories = map[string]Category{
	"Light":       CategoryBulb,
	"MeshLight":   CategoryBulb,
	"Plug":        CategoryPlug,
	"OutdoorPlug": CategoryPlug,
	"Camera":      CategoryCamera,
}

// CategoryFor returns the category for an inventory type.
func CategoryFor(deviceType string) (Category, error) {
	c, ok := typeCategories[deviceType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, deviceType)
	}
	return c, nil
}

// Device is one inventory entry plus the last state reported by the bridge.
type Device struct {
	MAC      string   `json:"mac"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Model    string   `json:"model"`
	Category Category `json:"category"`

	Online bool `json:"online"`
	On     bool `json:"on"`
}

// NormalizeMAC upper-cases a MAC and strips surrounding space so lookups
// match however the address was typed.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}
