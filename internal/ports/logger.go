package ports

import "context"

// Logger is the structured logging contract shared by synchronizers, adapters and commands.
// Fields are merged in order; later maps win on duplicate keys.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	// Warn is used for degraded outcomes that leave local data intact, such as an unreachable source.
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs err alongside msg. Callers still return err; logging never replaces propagation.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
