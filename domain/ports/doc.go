// Package ports defines the interfaces the script host depends on.
// Domain logic depends on these abstractions; infrastructure adapters implement them.
package ports
