package config

import "fmt"

// ModuleName is the name of this module, set at build time.
var ModuleName = "smart-wallet"

// Commit is the git commit hash this binary was built from, set at build time.
var Commit = "local"

// BuildDate is the date this binary was built, set at build time.
var BuildDate = "unknown"

// GetFormattedBuildArgs returns "<ModuleName> @ <Commit> (<BuildDate>)".
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", ModuleName, Commit, BuildDate)
}
