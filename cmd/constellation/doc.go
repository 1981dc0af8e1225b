// Package main hosts the Constellation CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into generation runs,
// artifact cache maintenance, spend reports and configuration scaffolding.
// Heavy lifting lives in internal/runner and the packages it wires; commands
// here resolve configuration, parse flags and render results.
package main
