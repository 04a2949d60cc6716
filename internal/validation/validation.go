// Package validation checks untrusted input handed to the plugin operations
// by agents and scripts: package names, plugin references, and local paths.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Common validation errors.
var (
	ErrEmptyInput        = errors.New("input cannot be empty")
	ErrInvalidNpmPackage = errors.New("invalid npm package name")
	ErrInvalidPluginRef  = errors.New("invalid plugin reference")
	ErrPathTraversal     = errors.New("path traversal detected")
	ErrInvalidPath       = errors.New("invalid path")
	ErrCommandInjection  = errors.New("potential command injection detected")
)

var (
	// npmPackageRegex matches npm package names, scoped or unscoped, without
	// a version suffix.
	// Examples: "usefultools-plugin-json", "@acme/usefultools-plugin-x"
	npmPackageRegex = regexp.MustCompile(`^(@[a-z0-9][a-z0-9._-]*/)?[a-z0-9][a-z0-9._-]*$`)

	// pluginIDRegex matches plugin ids as they appear in manifests.
	// Examples: "json", "color-picker", "base64_v2"
	pluginIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

	// shellMetaChars contains shell metacharacters that could enable injection
	shellMetaChars = []string{";", "|", "&", "$", "`", "(", ")", "{", "}", "<", ">", "\n", "\r", "\\"}
)

// ValidateNpmPackage validates an npm package name.
func ValidateNpmPackage(name string) error {
	if name == "" {
		return ErrEmptyInput
	}

	if len(name) > 214 {
		return fmt.Errorf("%w: package name too long", ErrInvalidNpmPackage)
	}

	if !npmPackageRegex.MatchString(name) {
		return fmt.Errorf("%w: %q is not a valid npm package name", ErrInvalidNpmPackage, name)
	}

	return nil
}

// ValidatePluginRef validates a reference to an installable plugin: either
// a plugin id or a package name.
func ValidatePluginRef(ref string) error {
	if ref == "" {
		return ErrEmptyInput
	}

	if containsShellMeta(ref) {
		return fmt.Errorf("%w: %q contains shell metacharacters", ErrCommandInjection, ref)
	}

	if strings.HasPrefix(ref, "@") || strings.Contains(ref, "/") {
		return ValidateNpmPackage(ref)
	}

	if len(ref) > 214 || !pluginIDRegex.MatchString(ref) {
		return fmt.Errorf("%w: %q", ErrInvalidPluginRef, ref)
	}

	return nil
}

// ValidatePath validates a local file path and rejects traversal sequences.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyInput
	}

	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: path contains null byte", ErrInvalidPath)
	}

	if containsPathTraversal(path) {
		return fmt.Errorf("%w: %q contains traversal sequence", ErrPathTraversal, path)
	}

	return nil
}

// containsShellMeta checks if a string contains shell metacharacters.
func containsShellMeta(s string) bool {
	for _, char := range shellMetaChars {
		if strings.Contains(s, char) {
			return true
		}
	}
	return false
}

// containsPathTraversal checks for common path traversal patterns.
func containsPathTraversal(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return true
		}
	}

	// URL-encoded traversal
	lower := strings.ToLower(path)
	return strings.Contains(lower, "%2e%2e")
}
