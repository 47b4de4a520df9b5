// Package docs registers the OpenAPI description served at /swagger.
//
// Regenerate with: swag init -g cmd/goalsd/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/submissions": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Submissions"],
                "summary": "Record a contribution",
                "operationId": "submit",
                "parameters": [
                    {"type": "string", "description": "Idempotency key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Submission", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SubmitRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/services.SubmitResult"}},
                    "400": {"description": "Bad request or invalid quantity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthenticated", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Part not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Duplicate or part inactive", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Database failure", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/submissions/{id}": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["Submissions"],
                "summary": "Change a submission's quantity",
                "operationId": "editSubmission",
                "parameters": [
                    {"type": "string", "description": "Idempotency key", "name": "Idempotency-Key", "in": "header"},
                    {"minimum": 1, "type": "integer", "description": "Submission ID", "name": "id", "in": "path", "required": true},
                    {"description": "New quantity", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.EditRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.MutationResult"}},
                    "409": {"description": "Duplicate", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Submissions"],
                "summary": "Delete a submission",
                "operationId": "deleteSubmission",
                "parameters": [
                    {"type": "string", "description": "Idempotency key", "name": "Idempotency-Key", "in": "header"},
                    {"minimum": 1, "type": "integer", "description": "Submission ID", "name": "id", "in": "path", "required": true},
                    {"description": "Delete key", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/handlers.DeleteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.MutationResult"}},
                    "409": {"description": "Duplicate", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/projects/active": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Projects"],
                "summary": "List unfulfilled projects",
                "operationId": "activeProjects",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/projects/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Projects"],
                "summary": "Project detail",
                "operationId": "getProject",
                "parameters": [{"minimum": 1, "type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}
            }
        },
        "/projects/{id}/top": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Projects"],
                "summary": "Top contributors of the current cycle",
                "operationId": "topContributors",
                "parameters": [
                    {"minimum": 1, "type": "integer", "name": "id", "in": "path", "required": true},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 10, "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/projects/{id}/archives": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Projects"],
                "summary": "Completion archives of a project",
                "operationId": "projectArchives",
                "parameters": [{"minimum": 1, "type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/completed/recent": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Stats"],
                "summary": "Recently completed projects",
                "operationId": "recentlyCompleted",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/parts/{id}/submissions/mine": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Stats"],
                "summary": "Own submissions of the current cycle",
                "operationId": "mySubmissions",
                "parameters": [{"minimum": 1, "type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/me/contributions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Stats"],
                "summary": "Own lifetime contributions",
                "operationId": "myContributions",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/contributions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Stats"],
                "summary": "Everyone's lifetime contributions",
                "operationId": "groupContributions",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/projects": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Admin"],
                "summary": "Create a project",
                "operationId": "createProject",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateProjectRequest"}}],
                "responses": {"201": {"description": "Created"}, "403": {"description": "Forbidden"}}
            }
        },
        "/admin/projects/{id}/parts": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Admin"],
                "summary": "Add a part to a project",
                "operationId": "addPart",
                "parameters": [
                    {"minimum": 1, "type": "integer", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AddPartRequest"}}
                ],
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/admin/projects/{id}/start": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Admin"],
                "summary": "Start a goal cycle",
                "operationId": "startProject",
                "parameters": [{"minimum": 1, "type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "409": {"description": "No part has a goal"}}
            }
        },
        "/admin/projects/{id}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Admin"],
                "summary": "Delete a project",
                "operationId": "deleteProject",
                "parameters": [{"minimum": 1, "type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/admin/archives/{id}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Admin"],
                "summary": "Delete a completion archive",
                "operationId": "deleteArchive",
                "parameters": [{"minimum": 1, "type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string"},
                "duplicate": {"type": "boolean"}
            }
        },
        "handlers.SubmitRequest": {
            "type": "object",
            "properties": {
                "project_id": {"type": "integer"},
                "part_id": {"type": "integer"},
                "quantity": {"type": "integer"},
                "submission_id": {"type": "string"}
            }
        },
        "handlers.EditRequest": {
            "type": "object",
            "properties": {
                "quantity": {"type": "integer"},
                "edit_id": {"type": "string"}
            }
        },
        "handlers.DeleteRequest": {
            "type": "object",
            "properties": {
                "delete_id": {"type": "string"}
            }
        },
        "handlers.CreateProjectRequest": {
            "type": "object",
            "required": ["name"],
            "properties": {
                "name": {"type": "string", "maxLength": 255},
                "url": {"type": "string"},
                "materials": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.AddPartRequest": {
            "type": "object",
            "required": ["name"],
            "properties": {
                "name": {"type": "string"},
                "goal": {"type": "integer", "minimum": 0},
                "estimated_length": {"type": "number", "minimum": 0},
                "estimated_weight": {"type": "number", "minimum": 0}
            }
        },
        "services.SubmitResult": {
            "type": "object",
            "properties": {
                "submission_id": {"type": "integer"},
                "part_id": {"type": "integer"},
                "progress": {"type": "integer"},
                "goal": {"type": "integer"},
                "user_contribution": {"type": "integer"},
                "completed": {"type": "boolean"},
                "archive_id": {"type": "integer"}
            }
        },
        "services.MutationResult": {
            "type": "object",
            "properties": {
                "submission_id": {"type": "integer"},
                "part_id": {"type": "integer"},
                "progress": {"type": "integer"},
                "goal": {"type": "integer"},
                "completed": {"type": "boolean"},
                "archive_id": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Production Goals API",
	Description:      "Shared production quotas with idempotent contributions and automatic completion archiving.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
