// Package privacy carries the request's authenticated principal into the
// policy engine.
//
// Access control itself lives on the schema, as declarative
// `@@allow`/`@@deny` rules compiled by the policy package — there is no
// imperative rule-chain to write in Go. What this package provides is the
// context plumbing that gets a per-request Viewer to a Client call:
//
//	ctx := privacy.WithViewer(ctx, privacy.ClaimsMap{"id": "u1", "role": "admin"})
//	posts, err := client.FindMany(ctx, "Post", planner.Args{})
//
// Client resolves privacy.AuthValue(ctx) once per call and threads it
// through planner.Plan and exec.Executor.Run as the `auth()` value; an
// anonymous request (no Viewer attached) plans with a nil auth value, so
// any `auth() == null` check in a deny rule fires as expected.
package privacy
