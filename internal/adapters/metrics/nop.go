package metrics

import (
	"time"

	"github.com/usefultools/toolbox/internal/ports"
)

// Nop discards all measurements.
type Nop struct{}

// RegistryRequest does nothing.
func (Nop) RegistryRequest(string, int, time.Duration) {}

// CacheFetch does nothing.
func (Nop) CacheFetch(string) {}

// PackageSkipped does nothing.
func (Nop) PackageSkipped(string) {}

// InstallFinished does nothing.
func (Nop) InstallFinished(string, time.Duration) {}

// Uninstalled does nothing.
func (Nop) Uninstalled() {}

var _ ports.Metrics = Nop{}
