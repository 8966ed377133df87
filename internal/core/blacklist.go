package core

// SelfBundleID is the guard's own identifier. It can never be locked or
// terminated, no matter what the registry says.
const SelfBundleID = "dev.appguard.daemon"

// systemBlacklist lists identifiers that must never be locked or
// auto-closed: core OS utilities, terminals and editors the user needs to
// recover from a misconfiguration, and the guard itself. Not user-editable.
var systemBlacklist = map[string]struct{}{
	// Core OS utilities
	"com.apple.Terminal":          {},
	"com.apple.finder":            {},
	"com.apple.ActivityMonitor":   {},
	"com.apple.systempreferences": {},
	"com.apple.SystemSettings":    {},

	// Development tools
	"com.apple.dt.Xcode":           {},
	"com.googlecode.iterm2":        {},
	"com.microsoft.VSCode":         {},
	"com.microsoft.VSCodeInsiders": {},
	"com.jetbrains.intellij":       {},
	"org.gnome.Terminal":           {},
	"org.gnome.Console":            {},

	// The guard itself
	SelfBundleID: {},
}

// IsExempt reports whether an identifier may never be locked or terminated.
// Consulted before every lock and auto-close action.
func IsExempt(bundleID string) bool {
	_, ok := systemBlacklist[bundleID]
	return ok
}
