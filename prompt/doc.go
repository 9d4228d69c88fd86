// Package prompt turns ranked fragments into the bounded context block a
// language model sees, and holds the default system instruction.
package prompt
