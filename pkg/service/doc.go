// Package service wires Rhea's components into one dependency-injected
// facade.
//
// A Service owns the token estimator, pricing catalog, cost estimator,
// budget engine, router, conversation store, and LLM client, constructed
// from a single configuration. It exposes the operations a transport layer
// calls: budget-aware routing and completion, conversation context
// management, and budget administration. There is no ambient global state;
// the application bootstrap constructs a Service and passes it by reference.
package service
