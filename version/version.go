package version

// VERSION as printed by the version command. Overridden at build time with
// -ldflags "-X github.com/coastalwx/alert-engine/version.VERSION=...".
var VERSION = "0.3.0-dev"
