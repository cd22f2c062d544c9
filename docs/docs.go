// Package docs serves the Swagger 2.0 description of the HTTP API. It is
// maintained by hand alongside the swag annotations in internal/services and
// internal/handlers.
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
        "/scans": {
            "post": {
                "description": "Handle a card tap. The admin port captures or identifies cards; any other port commits a purchase.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "Process card scan",
                "parameters": [
                    {"description": "Scan", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.ScanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ScanResult"}},
                    "400": {"description": "Invalid request or debt limit reached", "schema": {"$ref": "#/definitions/services.ShopErrorResponse"}},
                    "403": {"description": "Card or account inactive", "schema": {"$ref": "#/definitions/services.ShopErrorResponse"}},
                    "404": {"description": "Card not registered or port not configured", "schema": {"$ref": "#/definitions/services.ShopErrorResponse"}}
                }
            }
        },
        "/payments": {
            "post": {
                "description": "Reduce a student's debt. Retries with the same idempotency key return the original payment.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Record payment",
                "parameters": [
                    {"type": "string", "description": "Idempotency key, used when the body has none", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Payment", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.PaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "Idempotent replay", "schema": {"$ref": "#/definitions/services.PaymentResponse"}},
                    "201": {"description": "Payment recorded", "schema": {"$ref": "#/definitions/services.PaymentResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ShopErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ShopErrorResponse"}}
                }
            }
        },
        "/payments/{reference}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Get payment",
                "parameters": [
                    {"type": "string", "description": "Payment reference", "name": "reference", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ShopErrorResponse"}}
                }
            }
        },
        "/admin/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Admin login",
                "parameters": [
                    {"description": "Credentials", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.AuthResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/admin/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Admin logout",
                "responses": {"200": {"description": "Logout successful"}}
            }
        },
        "/cards": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["cards"],
                "summary": "List active cards",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/cards/captured": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["cards"],
                "summary": "Latest captured card",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/cards/{uid}/link": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["cards"],
                "summary": "Link card",
                "parameters": [
                    {"type": "string", "description": "Card UID", "name": "uid", "in": "path", "required": true},
                    {"description": "Account", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.LinkCardRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ShopErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ShopErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ShopErrorResponse"}}
                }
            }
        },
        "/cards/{uid}/unlink": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["cards"],
                "summary": "Unlink card",
                "parameters": [{"type": "string", "description": "Card UID", "name": "uid", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}
            }
        },
        "/cards/{uid}/deactivate": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["cards"],
                "summary": "Deactivate card",
                "parameters": [{"type": "string", "description": "Card UID", "name": "uid", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/cards/{uid}/reactivate": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["cards"],
                "summary": "Reactivate card",
                "parameters": [{"type": "string", "description": "Card UID", "name": "uid", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/accounts": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "List accounts",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Create account",
                "parameters": [
                    {"description": "Account", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.CreateAccountRequest"}}
                ],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}
            }
        },
        "/accounts/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Get account",
                "parameters": [{"type": "string", "description": "Account ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/accounts/{id}/payback-qr": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["QR"],
                "summary": "Generate payback QR",
                "parameters": [{"type": "string", "description": "Account ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}}
            }
        },
        "/payback-qr/{code}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["QR"],
                "summary": "Resolve payback QR",
                "parameters": [{"type": "string", "description": "Payback code", "name": "code", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/shelves": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["shelves"],
                "summary": "List shelves",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/shelves/{port}": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["shelves"],
                "summary": "Set shelf price",
                "parameters": [
                    {"type": "integer", "description": "Port number", "name": "port", "in": "path", "required": true},
                    {"description": "Price", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.ShelfPriceRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/settings/max_debt_limit": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Get debt limit",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/services.DebtLimitResponse"}}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Update debt limit",
                "parameters": [
                    {"description": "New limit", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.DebtLimitRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/services.DebtLimitResponse"}}, "400": {"description": "Bad Request"}}
            }
        }
    },
    "definitions": {
        "services.ScanRequest": {
            "type": "object",
            "required": ["card_uid"],
            "properties": {
                "card_uid": {"type": "string", "maxLength": 64, "minLength": 4, "example": "04a1b2c3"},
                "port_number": {"type": "integer", "example": 3},
                "timestamp": {"type": "string"}
            }
        },
        "services.ScanResult": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "message": {"type": "string"},
                "error_code": {"type": "string"},
                "account_id": {"type": "string"},
                "display_name": {"type": "string"},
                "amount_charged": {"type": "integer"},
                "new_balance": {"type": "integer"},
                "reference": {"type": "string"}
            }
        },
        "services.PaymentRequest": {
            "type": "object",
            "required": ["account_id", "amount"],
            "properties": {
                "account_id": {"type": "string", "maxLength": 64, "example": "S1234567"},
                "amount": {"type": "integer", "example": 500},
                "idempotency_key": {"type": "string", "maxLength": 128},
                "auto_cap": {"type": "boolean"}
            }
        },
        "services.PaymentResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "success"},
                "payment": {"type": "object"},
                "new_balance": {"type": "integer"}
            }
        },
        "services.LoginRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {
                "username": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "services.AuthResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "token_type": {"type": "string", "example": "bearer"},
                "admin": {"type": "object"}
            }
        },
        "services.LinkCardRequest": {
            "type": "object",
            "required": ["account_id"],
            "properties": {"account_id": {"type": "string"}}
        },
        "services.CreateAccountRequest": {
            "type": "object",
            "required": ["account_id", "first_name", "last_name"],
            "properties": {
                "account_id": {"type": "string"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"}
            }
        },
        "services.ShelfPriceRequest": {
            "type": "object",
            "required": ["price"],
            "properties": {"price": {"type": "integer", "example": 150}}
        },
        "services.DebtLimitRequest": {
            "type": "object",
            "required": ["value"],
            "properties": {"value": {"type": "integer", "example": 2500}}
        },
        "services.DebtLimitResponse": {
            "type": "object",
            "properties": {
                "key": {"type": "string", "example": "max_debt_limit"},
                "value": {"type": "integer", "example": 2000}
            }
        },
        "services.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "services.ShopErrorResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "error_code": {"type": "string"},
                "message": {"type": "string"},
                "current_debt": {"type": "integer"}
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
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Tap Shop Backend API",
	Description:      "API for the card-tap campus shop",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
