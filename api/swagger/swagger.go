package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Fee Ledger API",
        "description": "Fee ledger, late-fee batch, waivers and guardian reminders",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Fees", "description": "Ledger views and payments"},
        {"name": "Waivers", "description": "Waiver request and review"},
        {"name": "LateFees", "description": "Late-fee batch"},
        {"name": "Reminders", "description": "Guardian reminder digests"},
        {"name": "Metrics", "description": "Operational metrics"}
    ],
    "paths": {
        "/fees/{id}/ledger": {
            "get": {
                "tags": ["Fees"],
                "summary": "Fee ledger",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "asOf", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Fee not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/fees/{id}/payments": {
            "post": {
                "tags": ["Fees"],
                "summary": "Record a payment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordPaymentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Fee settled or installment out of sequence", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/fees/{id}/installments/{seq}/payments": {
            "post": {
                "tags": ["Fees"],
                "summary": "Pay a specific installment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "seq", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordPaymentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Installment out of sequence", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/waivers": {
            "get": {
                "tags": ["Waivers"],
                "summary": "List waivers",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "feeId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "approved", "rejected"]}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Waivers"],
                "summary": "Request a waiver",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateWaiverRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/waivers/{id}/approve": {
            "post": {
                "tags": ["Waivers"],
                "summary": "Approve a pending waiver",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Waiver already reviewed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/waivers/{id}/reject": {
            "post": {
                "tags": ["Waivers"],
                "summary": "Reject a pending waiver",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectWaiverRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Waiver already reviewed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/late-fees/run": {
            "post": {
                "tags": ["LateFees"],
                "summary": "Run the late-fee batch",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/RunLateFeesRequest"}}
                ],
                "responses": {
                    "200": {"description": "Batch report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Another run is in progress", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Failed to load inputs", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reminders": {
            "get": {
                "tags": ["Reminders"],
                "summary": "Build the reminder digest",
                "parameters": [
                    {"name": "asOf", "in": "query", "type": "string", "format": "date"},
                    {"name": "days", "in": "query", "type": "integer"},
                    {"name": "overdueOnly", "in": "query", "type": "boolean"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/reminders/dispatch": {
            "post": {
                "tags": ["Reminders"],
                "summary": "Queue reminder dispatch",
                "parameters": [
                    {"name": "asOf", "in": "query", "type": "string", "format": "date"},
                    {"name": "days", "in": "query", "type": "integer"},
                    {"name": "overdueOnly", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Dispatch queue full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reminders/export": {
            "get": {
                "tags": ["Reminders"],
                "summary": "Export the reminder digest",
                "produces": ["text/csv", "application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "parameters": [
                    {"name": "asOf", "in": "query", "type": "string", "format": "date"},
                    {"name": "days", "in": "query", "type": "integer"},
                    {"name": "overdueOnly", "in": "query", "type": "boolean"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx"]}
                ],
                "responses": {"200": {"description": "File"}}
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Finance metrics summary",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "RecordPaymentRequest": {
            "type": "object",
            "required": ["amount", "method"],
            "properties": {
                "amount": {"type": "string", "example": "250000.00"},
                "method": {"type": "string"},
                "transactionRef": {"type": "string"},
                "paidAt": {"type": "string", "format": "date-time"},
                "installmentSequence": {"type": "integer"}
            }
        },
        "CreateWaiverRequest": {
            "type": "object",
            "required": ["studentId", "kind", "amountType", "value", "reason", "validFrom"],
            "properties": {
                "studentId": {"type": "string"},
                "feeId": {"type": "string"},
                "kind": {"type": "string"},
                "amountType": {"type": "string", "enum": ["percentage", "fixed"]},
                "value": {"type": "string"},
                "reason": {"type": "string"},
                "validFrom": {"type": "string", "format": "date-time"},
                "validUntil": {"type": "string", "format": "date-time"}
            }
        },
        "RejectWaiverRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {"reason": {"type": "string"}}
        },
        "RunLateFeesRequest": {
            "type": "object",
            "properties": {
                "dryRun": {"type": "boolean"},
                "feeType": {"type": "string"},
                "asOf": {"type": "string", "format": "date"}
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
