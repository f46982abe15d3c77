// Package audit records authorization decisions worth keeping.
//
// The main producer is the guard, which emits an authz.access_denied event
// for every denied permission assertion:
//
//	{"actorId": "...", "role": "...", "tenantId": "...", "deniedPermission": "user:delete", "timestamp": "..."}
//
// Sinks implement Logger. FileLogger appends JSON lines with size based
// rotation, SlogLogger writes to the service log, and MultiLogger fans out
// to several sinks. WithMetrics counts events by type.
package audit
