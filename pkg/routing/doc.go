// Package routing selects a (provider, model) pair for each request.
//
// A request's task type and calling component resolve to a preferred route
// through a precedence table. The preferred pair is then checked against
// the budget engine; on rejection the router walks a fallback cascade
// through progressively cheaper models, then free models, then the single
// cheapest model in the catalog, and finally the original default. The
// cascade is total: with any catalog at all, routing always produces a
// decision and never returns an error to the caller.
package routing
