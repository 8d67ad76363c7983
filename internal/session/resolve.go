package session

import "github.com/pedrogbi/palaver/internal/config"

const DefaultSessionName = "main"

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. config.toml default_session
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}

// ResolveServerURL determines the remote service URL using precedence:
// 1. flagOverride (--server flag)
// 2. config.toml server_url
// 3. the compiled-in default
func ResolveServerURL(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.ServerURL != "" {
		return cfg.ServerURL
	}
	return config.DefaultServerURL
}
