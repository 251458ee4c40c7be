package logging

import "context"

type debugKey struct{}

// EnableDebugMode marks ctx so that CDebug calls made with it are logged regardless of the
// logger's level. An empty name is stored as "debug".
func EnableDebugMode(ctx context.Context, name string) context.Context {
	if name == "" {
		name = "debug"
	}
	return context.WithValue(ctx, debugKey{}, name)
}

// IsDebugMode reports whether EnableDebugMode was applied to ctx.
func IsDebugMode(ctx context.Context) bool {
	return GetName(ctx) != ""
}

// GetName returns the name passed to EnableDebugMode, or "" when debug mode is off.
func GetName(ctx context.Context) string {
	name, _ := ctx.Value(debugKey{}).(string)
	return name
}
