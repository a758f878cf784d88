// Package entities provides the core domain types of the script host:
// capabilities, permission requests and decisions, grant sets, and module records.
package entities
