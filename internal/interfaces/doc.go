// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Identity Provider
//
//   - auth.IdentityClient: every credential operation (internal/auth/service.go).
//     Implemented by identity.Client; tests use identitytest.Provider, which
//     serves the same REST surface over httptest.
//   - http.HealthChecker: provider reachability for /health (internal/http/config.go)
//
// ## Persistence
//
//   - auth.UserMirror: local copy of provider user records (internal/database/users)
//   - auth.AuditLogger: authentication audit trail (internal/audit)
//   - tasks.AuditEventCleaner, tasks.UserMirrorPruner: retention jobs
//
// ## Background Work
//
//   - http.TaskQueue, scheduler.Enqueuer: backlite queue access (internal/tasks)
//   - scheduler.TaskSource: the task set enqueued on each maintenance run
//   - http.MaintenanceRunner: on-demand maintenance (internal/scheduler)
//
// # Adding a New Auth Flow
//
//  1. Add the provider call to identity.Client and the fake in identitytest.
//
//  2. Extend auth.IdentityClient and add a Service method that validates
//     input, calls the client, and returns a Result through finish so the
//     attempt is audited and counted.
//
//  3. Expose it on AuthController (forms) and APIController (JSON), and list
//     the path in the middleware's public paths if it runs signed out.
//
// # Adding a New Maintenance Task
//
//  1. Define the task type and its QueueConfig in internal/tasks.
//
//  2. Add the processor to Maintenance.Queues and the default task to
//     Maintenance.Tasks so the scheduler enqueues it.
//
//  3. Accept the task type in TasksController.RunTask.
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the current set.
package interfaces
