// Package preflight provides readiness checks for the external services,
// binaries and filesystem paths that artstudio depends on.
//
// These checks run in two contexts:
//   - The daemon logs RunAll failures at startup so a missing key or an
//     unwritable render directory shows up before the first request.
//   - The CLI "artstudio status" command uses the individual checks
//     (CheckGemini, CheckDirectoryAccess, CheckSystemDeps) to display health.
package preflight
