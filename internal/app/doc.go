// Package app composes the coin engine: it wires the stores, the session
// registry, the accrual clock, the interaction reward processor, the
// withdrawal gate, and the reconciler into a single lifecycle-managed
// application.
//
// Layering:
//
//	internal/app/
//	├── application.go   # wiring and lifecycle
//	├── domain/          # pure data models (visitor, content, withdrawal)
//	├── storage/         # store interfaces plus memory, postgres, redis
//	├── services/        # ledger, session, accrual, rewards, wallet, ...
//	├── httpapi/         # gin handlers, middleware, websocket stream
//	├── system/          # service lifecycle manager
//	└── metrics/         # prometheus instrumentation
//
// Business rules live in internal/app/services; this package only builds
// and connects them.
package app
