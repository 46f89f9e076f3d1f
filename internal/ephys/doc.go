// Package ephys holds the extracellular recording data model used by the
// quality metrics: recordings that serve voltage snippets, sortings that map
// unit IDs to spike frames, and the waveform extractor that joins the two.
//
// Responsibilities: clip storage (ClipSet), in-memory and file-backed
// sources, spike-train CSV exchange, synthetic test recordings.
// Key types: Recording, Sorting, ClipSet, Extractor.
//
// No metric code lives here; see internal/quality.
package ephys
