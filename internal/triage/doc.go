// Package triage turns free-form task text into a time-boxed focus plan.
//
// The pipeline has three pure stages:
//   - Extract: raw text -> []Task (titles, durations, deadline hints)
//   - Rank:    []Task -> []Task scored and ordered by priority
//   - Pack:    ranked []Task + budget -> []Block (contiguous time blocks)
//
// Every stage returns a fresh slice owned by the caller, so concurrent
// pipelines never share mutable state as long as each caller owns its input.
package triage
