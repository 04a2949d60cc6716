package mcp

import (
	"errors"
	"fmt"

	"github.com/usefultools/toolbox/internal/domain/plugin"
	"github.com/usefultools/toolbox/internal/validation"
)

// ValidatePackageInput validates PackageInput fields.
func ValidatePackageInput(in *PackageInput) error {
	if err := validation.ValidateNpmPackage(in.Name); err != nil {
		return fmt.Errorf("invalid name: %w", err)
	}
	return nil
}

// ValidateInstallInput validates InstallInput fields.
func ValidateInstallInput(in *InstallInput) error {
	if err := validation.ValidatePluginRef(in.Ref); err != nil {
		return fmt.Errorf("invalid ref: %w", err)
	}
	return nil
}

// ValidateUninstallInput validates UninstallInput fields.
func ValidateUninstallInput(in *UninstallInput) error {
	if err := plugin.ValidateID(in.ID); err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}
	return nil
}

// ValidateLocalInput validates LocalInput fields. Exactly one of Dir and
// Bundle must be set.
func ValidateLocalInput(in *LocalInput) error {
	switch {
	case in.Dir == "" && in.Bundle == "":
		return errors.New("one of dir or bundle is required")
	case in.Dir != "" && in.Bundle != "":
		return errors.New("dir and bundle are mutually exclusive")
	case in.Dir != "":
		if err := validation.ValidatePath(in.Dir); err != nil {
			return fmt.Errorf("invalid dir: %w", err)
		}
	default:
		if err := validation.ValidatePath(in.Bundle); err != nil {
			return fmt.Errorf("invalid bundle: %w", err)
		}
	}
	return nil
}
