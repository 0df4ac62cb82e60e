// Package api hosts the HTTP server, middleware and REST handlers. Notable routes:
//   - POST /v1/crawls, GET /v1/crawls/{job_id} and its export, progress and sites views.
//   - POST /v1/competitive/{keyword-gap,share-of-voice,overview} for competitive jobs.
//   - GET /v1/jobs/{job_id}, its /wait long-poll, and POST /v1/jobs/{job_id}/cancel.
//   - GET /healthz and /readyz for probes, /metrics for Prometheus scraping.
package api
