// Package logging provides structured logging built on Zap.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Automatic context field injection (tenant/project/user scope, session, request id)
//   - Defense-in-depth secret redaction
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx := logging.WithScope(ctx, &logging.Scope{TenantID: "acme"})
//	ctx = logging.WithSessionID(ctx, "sess_123")
//	logger.Info(ctx, "request processed", zap.Duration("duration", d))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2025-11-24T10:15:30.000Z",
//	  "level": "info",
//	  "msg": "request processed",
//	  "tenant_id": "acme",
//	  "session_id": "sess_123",
//	  "duration": 0.045
//	}
//
// # Configuration
//
// NewLogger takes a *Config built by the caller. engramad passes
// NewDefaultConfig (JSON format); no config file section or environment
// variable is read into the logging Config.
//
// # Secret Redaction
//
// Secrets are redacted at multiple layers:
//  1. Domain primitives (config.Secret type)
//  2. Encoder-level field name filtering
//  3. Encoder-level pattern matching
//
// Use helpers for manual redaction:
//
//	logger.Info(ctx, "auth received",
//	    logging.RedactedString("authorization", authHeader))
//
// # Sampling
//
// Level-aware sampling prevents log floods:
//   - Every level below Error is sampled with the Initial and Thereafter
//     of the Sampling.Levels entry for Info; the entries for other
//     levels are not read.
//   - Error+: never sampled
//
// Disable for debugging:
//
//	cfg.Sampling.Enabled = false
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
package logging
