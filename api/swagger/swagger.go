package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Motta Superate Grades API",
        "description": "Grade management for the Motta Superate school: promotions, subjects, enrollment and grade entry.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Login, token refresh and password changes"},
        {"name": "Promotions", "description": "Promotion (class group) management"},
        {"name": "Subjects", "description": "Subject catalogue and promotion links"},
        {"name": "Teachers", "description": "Teacher accounts and profiles"},
        {"name": "Students", "description": "Enrollment and the student roster"},
        {"name": "Grades", "description": "Grade entry and categories"},
        {"name": "Users", "description": "Identity administration"},
        {"name": "Exports", "description": "Credential sheets and grade reports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate with email and password",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}],
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a refresh token for a new token pair",
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/password": {
            "put": {
                "tags": ["Auth"],
                "summary": "Change the current account's password",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Password changed"}
                }
            }
        },
        "/promotions": {
            "get": {
                "tags": ["Promotions"],
                "summary": "List promotions",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "turn", "in": "query", "type": "string", "enum": ["AM", "PM"]},
                    {"name": "year", "in": "query", "type": "integer"},
                    {"name": "search", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Promotion list", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Promotions"],
                "summary": "Create a promotion",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/promotions/{id}": {
            "delete": {
                "tags": ["Promotions"],
                "summary": "Delete a promotion and its enrolled students",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Deletion summary", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/promotions/{id}/credentials-export": {
            "post": {
                "tags": ["Exports"],
                "summary": "Render a CSV of initial credentials for a promotion",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Signed download token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects": {
            "get": {
                "tags": ["Subjects"],
                "summary": "List subjects",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Subject list", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Subjects"],
                "summary": "Create a subject",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects/{id}/promotions/{promotionId}": {
            "put": {
                "tags": ["Subjects"],
                "summary": "Link a promotion to a subject",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Linked"}
                }
            },
            "delete": {
                "tags": ["Subjects"],
                "summary": "Unlink a promotion from a subject",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Unlinked"}
                }
            }
        },
        "/teachers": {
            "post": {
                "tags": ["Teachers"],
                "summary": "Create a teacher account and profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Teacher with initial passcode", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "promotion_id", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Student list", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Enroll a single student",
                "description": "Creates the identity and profile, then assigns every subject of the promotion.",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Student with assignment report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/bulk": {
            "post": {
                "tags": ["Students"],
                "summary": "Enroll students from pasted text",
                "description": "One comma separated record per line. Partial failures are reported per record.",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Per-record results", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/grade-report": {
            "post": {
                "tags": ["Exports"],
                "summary": "Render a student's grades as a PDF report",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Signed download token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grades": {
            "get": {
                "tags": ["Grades"],
                "summary": "List grades",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Grade list", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Grades"],
                "summary": "Record a grade",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/delete-batch": {
            "post": {
                "tags": ["Users"],
                "summary": "Delete several accounts, reporting each outcome",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Per-account results", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/download": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an export artifact via signed token",
                "parameters": [{"name": "token", "in": "query", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "File contents"},
                    "404": {"description": "Unknown or expired token"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
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
