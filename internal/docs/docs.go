// Package docs registers the OpenAPI description of the intake server
// served under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/upload": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Store a photo. Duplicates are detected by SHA-256 and answered with the existing ID.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["photos"],
                "summary": "Upload a photo",
                "parameters": [
                    {"type": "file", "description": "Photo file", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "Original filename", "name": "originalFilename", "in": "formData"},
                    {"type": "string", "description": "Capture date (RFC3339)", "name": "dateTaken", "in": "formData"},
                    {"type": "string", "description": "Uploading device", "name": "deviceId", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.UploadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.UploadResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/models.UploadResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/models.UploadResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.UploadResponse"}}
                }
            }
        },
        "/api/photos": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["photos"],
                "summary": "List photos",
                "parameters": [
                    {"type": "integer", "description": "Offset", "name": "skip", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "take", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PhotoListResponse"}}
                }
            }
        },
        "/api/photos/check": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["photos"],
                "summary": "Check hashes",
                "parameters": [
                    {"description": "Hashes to look up", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.CheckHashesRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.CheckHashesResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/api/photos/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["photos"],
                "summary": "Get a photo",
                "parameters": [
                    {"type": "string", "description": "Photo ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PhotoResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["photos"],
                "summary": "Delete a photo",
                "parameters": [
                    {"type": "string", "description": "Photo ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.UploadResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "fileId": {"type": "string"},
                "isDuplicate": {"type": "boolean"}
            }
        },
        "models.CheckHashesRequest": {
            "type": "object",
            "properties": {
                "hashes": {"type": "array", "items": {"type": "string"}}
            }
        },
        "models.CheckHashesResult": {
            "type": "object",
            "properties": {
                "existing": {"type": "array", "items": {"type": "string"}},
                "missing": {"type": "array", "items": {"type": "string"}}
            }
        },
        "models.PhotoResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "originalFilename": {"type": "string"},
                "storedPath": {"type": "string"},
                "fileSize": {"type": "integer"},
                "contentType": {"type": "string"},
                "dateTaken": {"type": "string"},
                "uploadedAt": {"type": "string"}
            }
        },
        "models.PhotoListResponse": {
            "type": "object",
            "properties": {
                "photos": {"type": "array", "items": {"$ref": "#/definitions/models.PhotoResponse"}},
                "totalCount": {"type": "integer"},
                "skip": {"type": "integer"},
                "take": {"type": "integer"}
            }
        },
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
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
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "PhotoSync Intake API",
	Description:      "Receives photos uploaded by PhotoSync agents.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
