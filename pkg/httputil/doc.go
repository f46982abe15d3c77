// Package httputil provides HTTP helpers shared by the authorization
// handlers: JSON responses, request parsing and common middleware.
//
// Every error reply has the shape {"error": "..."}:
//
//	httputil.WriteForbidden(w, "missing permission user:delete")
//
// Middleware composes with Chain:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(log),
//		httputil.LoggingMiddleware(log),
//	)(router)
package httputil
