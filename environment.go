package auth

import "strings"

const (
	EnvironmentDefault = "default"
	EnvironmentDev     = "dev"
	EnvironmentTest    = "test"
	EnvironmentProd    = "prod"
)

var knownEnvironments = []string{EnvironmentDev, EnvironmentTest, EnvironmentProd}

// ResolveEnvironment returns the first active profile that is a known
// environment, or "default" when none is.
func ResolveEnvironment(profiles []string) string {
	for _, p := range profiles {
		p = strings.ToLower(strings.TrimSpace(p))
		for _, env := range knownEnvironments {
			if p == env {
				return env
			}
		}
	}
	return EnvironmentDefault
}

// ComputeIssuer binds tokens to an application and environment
func ComputeIssuer(appName, environment string) string {
	if environment == "" {
		environment = EnvironmentDefault
	}
	return appName + "_" + environment
}
