// Package ingestion turns submitted files into stored vector chunks.
//
// A Pipeline records each submission as a PipelineJob in RUNNING state and
// hands it to a fixed-size worker pool. A worker runs the job through a Chain
// of stages:
//   - parse: extract pages from the file
//   - chunk: split pages into overlapping chunks
//   - embed_store: embed the chunks and add them to the target collection
//
// The first failing stage stops the job. Whatever happens, the job's record
// is updated exactly once, to SUCCEEDED or to FAILED with the stage name and
// error as its message. Stage errors never escape to the caller of Submit.
package ingestion
