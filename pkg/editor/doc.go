// Package editor implements the interactive configuration session: a small
// state machine (Browsing, Editing, Exiting) over a resolved option tree.
//
// Every edit re-runs engine.Resolve, so rows always reflect a complete pass.
// Rendering is left to callers; see package tui.
package editor
