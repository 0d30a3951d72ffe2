// Package costs prices LLM requests by combining token estimation with the
// model price catalog.
//
// Estimate prices a prospective request before it is sent: the output side is
// approximated by synthesizing a placeholder completion of an assumed length.
// The result is intentionally rough and is used only for pre-flight budget
// admission. Actual prices a completed request from its real output and is
// what gets written to the usage ledger.
package costs
