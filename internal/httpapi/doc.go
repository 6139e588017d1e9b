// Package httpapi serves the owner REST API, the due-event websocket and the
// operator endpoints on one fiber app.
//
// Routes:
//
//	GET    /healthz
//	GET    /api/reminders/ws?token=<jwt>
//	GET    /api/reminders
//	POST   /api/reminders
//	GET    /api/reminders/:id
//	PUT    /api/reminders/:id
//	PATCH  /api/reminders/:id/active
//	DELETE /api/reminders/:id
//	GET    /ops/scheduler
//	POST   /ops/scheduler/tick
//	GET    /ops/supervisors
//	GET    /ops/notify
//
// Owner routes take "Authorization: Bearer <jwt>" (HS256, owner in "sub").
// Ops routes take "Authorization: Bearer <ops_token>" and are not mounted
// when no ops token is configured.
package httpapi
