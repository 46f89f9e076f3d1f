// Package quality computes per-unit sorting quality metrics.
//
// The noise overlap metric asks how well a unit's spike waveforms can be told
// apart from background noise. For each unit it:
//
//  1. draws a shared pool of noise clips at random frames of the recording,
//  2. builds a noise template amplitude-matched to the unit's median waveform,
//  3. projects that template out of every spike and noise clip,
//  4. reduces the joint clip set to its leading left-singular coordinates, and
//  5. measures how often each point's nearest neighbours carry the same
//     spike/noise label.
//
// The score is 1 - (same-label neighbours / neighbours examined): near 0 for a
// unit well separated from noise, near 0.5 for a unit indistinguishable from
// it.
//
// Randomness comes from a caller-owned *rand.Rand. Each unit gets its own
// stream seeded from it in unit order, so a fixed seed gives identical
// scores for any worker count.
package quality
