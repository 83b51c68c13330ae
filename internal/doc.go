// Package internal documents the rescue dog aggregator's internals.
//
// The internal tree is organized by responsibility:
// - adapters: per-source scrapers (static HTML, JSON-LD, JS-rendered) and shared extractors
// - scraperframework, session, filtering, standardize, batchproc: the scrape pipeline
// - orchestrator, progress, quality: batch driving, progress reporting, offline quality scoring
// - domain: domain models and repository interfaces
// - storage/postgres: database access, repositories and migrations (pgx + Postgres)
// - config, orgconfig, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
