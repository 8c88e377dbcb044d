package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Competency Training API",
        "description": "Admin panel backend for competency training tracking",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Login, token refresh and session management"},
        {"name": "Users", "description": "User administration"},
        {"name": "Competencies", "description": "Competency catalog with levels and prerequisites"},
        {"name": "TrainingRequests", "description": "Training request workflow"},
        {"name": "ValidationApprovals", "description": "Validation project approval workflow"},
        {"name": "ValidationSchedules", "description": "Validation schedule requests and outcomes"},
        {"name": "ProjectAssignments", "description": "Project assignment negotiations"},
        {"name": "Batches", "description": "Training batches, homework and attendance"},
        {"name": "Reports", "description": "Waitlists, activity log and async exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and issue tokens",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate the refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current user profile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List users",
                "parameters": [
                    {"name": "role", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Users"],
                "summary": "Create user",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/competencies": {
            "get": {
                "tags": ["Competencies"],
                "summary": "List competencies",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Competencies"],
                "summary": "Create competency with its levels",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/competencies/{id}/applicability": {
            "get": {
                "tags": ["Competencies"],
                "summary": "Per-level applicability for a learner",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "learnerId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/training-requests": {
            "get": {
                "tags": ["TrainingRequests"],
                "summary": "List training requests with due classification",
                "parameters": [
                    {"name": "learnerId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "integer"},
                    {"name": "pending", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["TrainingRequests"],
                "summary": "Apply for a competency level",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate open request"},
                    "412": {"description": "Prerequisites not met"}
                }
            }
        },
        "/validation-approvals": {
            "post": {
                "tags": ["ValidationApprovals"],
                "summary": "Submit a validation project",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/validation-approvals/{id}/review": {
            "post": {
                "tags": ["ValidationApprovals"],
                "summary": "Review a pending submission",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not pending"}
                }
            }
        },
        "/validation-schedules/{id}/schedule": {
            "post": {
                "tags": ["ValidationSchedules"],
                "summary": "Schedule a validation session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/validation-schedules/{id}/outcome": {
            "post": {
                "tags": ["ValidationSchedules"],
                "summary": "Record a validation outcome",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/project-assignments": {
            "get": {
                "tags": ["ProjectAssignments"],
                "summary": "List assignment requests",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["ProjectAssignments"],
                "summary": "Open an assignment negotiation",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches": {
            "get": {
                "tags": ["Batches"],
                "summary": "List training batches",
                "parameters": [
                    {"name": "trainerId", "in": "query", "type": "string"},
                    {"name": "levelId", "in": "query", "type": "string"},
                    {"name": "trainingRequestId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Batches"],
                "summary": "Create a batch with its session plan",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/count-by-competency-level": {
            "get": {
                "tags": ["Batches"],
                "summary": "Count batches per competency level",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/training-waitlist": {
            "get": {
                "tags": ["Reports"],
                "summary": "Training requests still waiting",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/exports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue an async export",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/activity-log": {
            "get": {
                "tags": ["Reports"],
                "summary": "Browse the audit trail",
                "parameters": [
                    {"name": "userId", "in": "query", "type": "string"},
                    {"name": "action", "in": "query", "type": "string"},
                    {"name": "resource", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "ExportRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["training_waitlist", "assignment_waitlist"]},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            },
            "required": ["type", "format"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
