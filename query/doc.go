// Package query answers natural-language questions against a task's indexed documents.
//
// An Engine runs three stages for every question:
//   - Decomposer asks the language model for 3-5 focused sub-questions
//   - Orchestrator searches the task index for each sub-question concurrently
//     and merges citations in sub-question order
//   - Synthesizer combines all retrieved context into one cited answer
//
// Only fatal provider errors (authentication, configuration, exhausted rate
// limits), invalid requests and cancellation are returned as errors. Every
// other failure degrades the answer instead: a failed decomposition falls back
// to the original question, a failed sub-query is dropped and a failed
// synthesis yields a fixed apology while keeping citations and sub-queries.
//
// Monitor observes each stage and is how status tracking and metrics hook in.
package query
