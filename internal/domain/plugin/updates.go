package plugin

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/usefultools/toolbox/internal/domain/registry"
)

// Direction labels how an available version relates to the installed one.
type Direction string

const (
	DirectionUpgrade   Direction = "upgrade"
	DirectionDowngrade Direction = "downgrade"
	// DirectionChange is used when either version is not semver or the two
	// differ only in build metadata.
	DirectionChange Direction = "change"
)

// Update is an installed plugin with a different version in the catalog.
type Update struct {
	ID        string              `json:"id" yaml:"id"`
	Installed string              `json:"installed" yaml:"installed"`
	Available registry.Descriptor `json:"available" yaml:"available"`
	Direction Direction           `json:"direction" yaml:"direction"`
}

// UpdateDirection compares two version strings as semver. It is
// informational only; any difference in the strings counts as an update.
func UpdateDirection(installed, available string) Direction {
	a, b := canonical(installed), canonical(available)
	if !semver.IsValid(a) || !semver.IsValid(b) {
		return DirectionChange
	}
	switch semver.Compare(a, b) {
	case -1:
		return DirectionUpgrade
	case 1:
		return DirectionDowngrade
	default:
		return DirectionChange
	}
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
