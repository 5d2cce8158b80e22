// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

// Package api hosts the LabelFlow HTTP API.
//
// Handlers live in the handlers subpackage. Every response uses the same
// envelope:
//
//	{"success": true, "data": {...}, "timestamp": "..."}
//	{"success": false, "error": {"code": "NOT_FOUND", "message": "..."}, "timestamp": "..."}
//
// # Endpoints
//
//	POST   /api/v1/projects
//	GET    /api/v1/projects/{id}
//	DELETE /api/v1/projects/{id}
//	GET    /api/v1/projects/{id}/workflow
//	POST   /api/v1/workflows
//	GET    /api/v1/workflows/{id}
//	PUT    /api/v1/workflows/{id}
//	GET    /api/v1/workflows/{id}/executions
//	POST   /api/v1/workflows/{id}/execute
//	POST   /api/v1/workflows/{id}/nodes/{node}/execute
//	GET    /api/v1/executions/{id}/status
//	GET    /api/v1/executions/{id}/nodes/{node}/status
//	POST   /api/v1/executions/{id}/retry
//	DELETE /api/v1/executions/{id}
//	GET    /api/v1/executions/{id}/data/{stage}?category=
//	GET    /api/v1/node-executions/{id}/data
//
// Graph executions are asynchronous: execute returns 202 with the
// execution id, and clients poll the status endpoint.
package api
