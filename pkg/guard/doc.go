// Package guard exposes authorization decisions to request handlers.
//
// A Guard combines the injected rbac.Authorizer, the actor resolver and an
// audit sink. Handlers either ask questions (CanPerform, Snapshot.Check) or
// make assertions (Assert, AssertAction). Assertions audit every denial.
// A loading snapshot yields ErrIndeterminate, which surfaces render as
// hidden or disabled rather than as a denial.
//
// Middleware chain for protected routes:
//
//	session := middleware.NewSessionMiddleware(nil, false)
//	router.Handle("/customers", session.Handler(
//		g.ActorMiddleware(g.RequirePermission(rbac.PermCustomerList)(listCustomers)),
//	))
package guard
