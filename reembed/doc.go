// Package reembed refreshes the embeddings of stored knowledge entries, for
// example after switching embedding models.
//
// Entries are read in ID order and processed in batches. Each batch is split
// into chunks embedded concurrently, written back to the knowledge repository
// and optionally mirrored to an external vector index. A checkpoint holding the
// highest finished entry ID is saved after every batch so an interrupted run
// resumes where it stopped.
package reembed
