// Package storage provides the durable reminder store and the audit log.
//
// Every driver implements reminder.Store with optimistic concurrency: each
// record carries a version that Update compares and bumps atomically.
package storage
