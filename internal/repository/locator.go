package repository

import "segstream/internal/config"

// Locator resolves the current segment directory for a scan.
//
// ok is false while the location is not yet available, which a scan
// treats as "no new data this pass" rather than an error. This is a
// normal transient state during startup of a dynamically located
// repository.
type Locator interface {
	Resolve() (dir string, ok bool)
}

type fixedLocator string

func (l fixedLocator) Resolve() (string, bool) { return string(l), true }

// FixedLocator returns a Locator that always resolves to dir.
func FixedLocator(dir string) Locator { return fixedLocator(dir) }

type settingsLocator struct {
	settings *config.Settings
}

func (l settingsLocator) Resolve() (string, bool) { return l.settings.Repository() }

// SettingsLocator returns a Locator that re-reads the repository
// directory from runtime settings on every scan, so a repointed
// repository takes effect without reconstructing the index.
func SettingsLocator(settings *config.Settings) Locator {
	return settingsLocator{settings: settings}
}
