// Package ephys defines the shared data model for electrophysiological
// signal analysis: immutable recording segments, frequency bands, and the
// validation error taxonomy used across the analysis packages.
//
// Segments are owned by the loading boundary and passed read-only into the
// analysis packages; nothing in this module mutates a Segment after
// construction.
package ephys
