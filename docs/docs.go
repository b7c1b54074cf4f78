// Package docs registers the OpenAPI document of the reconciler admin API
// with swag, which gin-swagger serves under /swagger.
package docs

import "github.com/swaggo/swag/v2"

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
        "/health": {
            "get": {
                "tags": ["system"],
                "summary": "Service and dependency health",
                "responses": {
                    "200": {"description": "All checks pass", "schema": {"$ref": "#/definitions/Envelope"}},
                    "503": {"description": "At least one dependency is degraded", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/sync/runs": {
            "post": {
                "tags": ["sync"],
                "summary": "Run a differential ERP sync over a period",
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/SyncRunRequest"}}
                ],
                "responses": {
                    "200": {"description": "Run report, also when the run ended partial", "schema": {"$ref": "#/definitions/Envelope"}},
                    "400": {"description": "Invalid period", "schema": {"$ref": "#/definitions/Envelope"}},
                    "409": {"description": "Another run holds the run lock", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            },
            "get": {
                "tags": ["sync"],
                "summary": "List sync run history",
                "parameters": [
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "page_size", "type": "integer"},
                    {"in": "query", "name": "order_dir", "type": "string", "enum": ["asc", "desc"]}
                ],
                "responses": {"200": {"description": "Paginated runs", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/links/resolve": {
            "post": {
                "tags": ["links"],
                "summary": "Resolve one ERP order or a batch of unlinked orders",
                "parameters": [
                    {"in": "body", "name": "body", "schema": {"$ref": "#/definitions/ResolveLinksRequest"}}
                ],
                "responses": {"200": {"description": "Outcome or batch report", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/links": {
            "post": {
                "tags": ["links"],
                "summary": "Link a marketplace order to an ERP order manually",
                "parameters": [
                    {"in": "header", "name": "X-Actor", "type": "string", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/CreateLinkRequest"}}
                ],
                "responses": {
                    "201": {"description": "Link created", "schema": {"$ref": "#/definitions/Envelope"}},
                    "409": {"description": "Marketplace order already linked", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/links/{marketplace}/{orderId}": {
            "parameters": [
                {"$ref": "#/parameters/Marketplace"},
                {"in": "path", "name": "orderId", "type": "string", "required": true}
            ],
            "get": {
                "tags": ["links"],
                "summary": "Get the link of a marketplace order",
                "responses": {
                    "200": {"description": "Link", "schema": {"$ref": "#/definitions/Envelope"}},
                    "404": {"description": "Not linked", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            },
            "put": {
                "tags": ["links"],
                "summary": "Reassign a link to another ERP order",
                "parameters": [
                    {"in": "header", "name": "X-Actor", "type": "string", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/ReassignLinkRequest"}}
                ],
                "responses": {"200": {"description": "Reassigned link", "schema": {"$ref": "#/definitions/Envelope"}}}
            },
            "delete": {
                "tags": ["links"],
                "summary": "Delete a link, keeping an audit record",
                "parameters": [
                    {"in": "header", "name": "X-Actor", "type": "string", "required": true},
                    {"in": "query", "name": "reason", "type": "string", "required": true}
                ],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/links/{marketplace}/{orderId}/audits": {
            "get": {
                "tags": ["links"],
                "summary": "Audit trail of a link",
                "parameters": [
                    {"$ref": "#/parameters/Marketplace"},
                    {"in": "path", "name": "orderId", "type": "string", "required": true}
                ],
                "responses": {"200": {"description": "Audit records, oldest first", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/fees/preview": {
            "post": {
                "tags": ["fees"],
                "summary": "Price a hypothetical order",
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/FeePreviewRequest"}}
                ],
                "responses": {"200": {"description": "Fee breakdown", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/fees/orders/{erpId}": {
            "post": {
                "tags": ["fees"],
                "summary": "Compute and store the expected net value of a linked order",
                "parameters": [
                    {"in": "path", "name": "erpId", "type": "integer", "format": "int64", "required": true},
                    {"in": "body", "name": "body", "schema": {"$ref": "#/definitions/ComputeFeeRequest"}}
                ],
                "responses": {
                    "200": {"description": "Fee breakdown", "schema": {"$ref": "#/definitions/Envelope"}},
                    "422": {"description": "Order not linked or not computable", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/fees/recompute": {
            "post": {
                "tags": ["fees"],
                "summary": "Recompute fees for every order created in a period",
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/DateRange"}}
                ],
                "responses": {"200": {"description": "Recompute report", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/fees/rules": {
            "get": {
                "tags": ["fees"],
                "summary": "Current fee rule snapshot",
                "responses": {"200": {"description": "Rule sets and snapshot version", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/fees/rules/{marketplace}": {
            "put": {
                "tags": ["fees"],
                "summary": "Replace the rule sets of a marketplace, effective immediately",
                "parameters": [
                    {"$ref": "#/parameters/Marketplace"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateRuleSetRequest"}}
                ],
                "responses": {"200": {"description": "Updated rules", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/payments/{marketplace}/ingest": {
            "post": {
                "tags": ["payments"],
                "summary": "Ingest settlement lines",
                "parameters": [
                    {"$ref": "#/parameters/Marketplace"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/IngestPaymentsRequest"}}
                ],
                "responses": {"200": {"description": "Ingest report", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/payments/{marketplace}/pull": {
            "post": {
                "tags": ["payments"],
                "summary": "Pull settlement exports from the bucket",
                "parameters": [
                    {"$ref": "#/parameters/Marketplace"},
                    {"in": "body", "name": "body", "schema": {"$ref": "#/definitions/PullPaymentsRequest"}}
                ],
                "responses": {
                    "200": {"description": "Ingest report", "schema": {"$ref": "#/definitions/Envelope"}},
                    "503": {"description": "No settlement bucket configured", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/payments/{marketplace}/resolve": {
            "post": {
                "tags": ["payments"],
                "summary": "Attach unresolved payments to ERP orders through links",
                "parameters": [{"$ref": "#/parameters/Marketplace"}],
                "responses": {"200": {"description": "Resolve report", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/payments/{marketplace}/groups": {
            "get": {
                "tags": ["payments"],
                "summary": "Payments grouped by base order with net balance and suggested tags",
                "parameters": [
                    {"$ref": "#/parameters/Marketplace"},
                    {"in": "query", "name": "from", "type": "string", "format": "date"},
                    {"in": "query", "name": "to", "type": "string", "format": "date"},
                    {"in": "query", "name": "base_order_id", "type": "string"},
                    {"in": "query", "name": "unresolved", "type": "boolean"},
                    {"in": "query", "name": "limit", "type": "integer"}
                ],
                "responses": {"200": {"description": "Groups", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/payments/{marketplace}/discrepancies": {
            "get": {
                "tags": ["payments"],
                "summary": "Compare expected net values with settled amounts",
                "parameters": [
                    {"$ref": "#/parameters/Marketplace"},
                    {"in": "query", "name": "from", "type": "string", "format": "date", "required": true},
                    {"in": "query", "name": "to", "type": "string", "format": "date", "required": true}
                ],
                "responses": {"200": {"description": "Discrepancy report", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/scheduler/jobs": {
            "get": {
                "tags": ["system"],
                "summary": "Scheduler job statistics",
                "responses": {
                    "200": {"description": "Stats per job", "schema": {"$ref": "#/definitions/Envelope"}},
                    "503": {"description": "Scheduler disabled", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        },
        "/scheduler/jobs/{name}/run": {
            "post": {
                "tags": ["system"],
                "summary": "Run a job out of schedule",
                "parameters": [
                    {"in": "path", "name": "name", "type": "string", "required": true, "enum": ["erp_sync", "link_batch", "payment_resolution"]}
                ],
                "responses": {
                    "202": {"description": "Job started", "schema": {"$ref": "#/definitions/Envelope"}},
                    "409": {"description": "Job already running", "schema": {"$ref": "#/definitions/Envelope"}}
                }
            }
        }
    },
    "parameters": {
        "Marketplace": {
            "in": "path",
            "name": "marketplace",
            "type": "string",
            "required": true,
            "enum": ["shopee", "mercado_livre", "magalu"]
        }
    },
    "definitions": {
        "Envelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {"type": "object"},
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "request_id": {"type": "string"},
                        "details": {"type": "array", "items": {"type": "object"}}
                    }
                },
                "meta": {"type": "object"}
            }
        },
        "DateRange": {
            "type": "object",
            "required": ["from", "to"],
            "properties": {
                "from": {"type": "string", "format": "date"},
                "to": {"type": "string", "format": "date"}
            }
        },
        "SyncRunRequest": {
            "allOf": [
                {"$ref": "#/definitions/DateRange"},
                {
                    "type": "object",
                    "properties": {
                        "page_size": {"type": "integer", "minimum": 1, "maximum": 100},
                        "window_days": {"type": "integer", "minimum": 1, "maximum": 31}
                    }
                }
            ]
        },
        "ResolveLinksRequest": {
            "type": "object",
            "properties": {
                "erp_order_id": {"type": "integer", "format": "int64"},
                "created_from": {"type": "string", "format": "date"},
                "limit": {"type": "integer", "minimum": 1, "maximum": 5000}
            }
        },
        "CreateLinkRequest": {
            "type": "object",
            "required": ["marketplace", "marketplace_order_id", "erp_order_id"],
            "properties": {
                "marketplace": {"type": "string", "enum": ["shopee", "mercado_livre", "magalu"]},
                "marketplace_order_id": {"type": "string", "maxLength": 64},
                "erp_order_id": {"type": "integer", "format": "int64"},
                "unit_count": {"type": "integer", "minimum": 1},
                "is_kit": {"type": "boolean"},
                "free_shipping": {"type": "boolean"},
                "campaign_order": {"type": "boolean"},
                "notes": {"type": "string", "maxLength": 500}
            }
        },
        "ReassignLinkRequest": {
            "type": "object",
            "required": ["erp_order_id", "reason"],
            "properties": {
                "erp_order_id": {"type": "integer", "format": "int64"},
                "reason": {"type": "string", "maxLength": 500}
            }
        },
        "FeePreviewRequest": {
            "type": "object",
            "required": ["marketplace", "order_value"],
            "properties": {
                "marketplace": {"type": "string", "enum": ["shopee", "mercado_livre", "magalu"]},
                "order_value": {"type": "string", "example": "129.90"},
                "unit_count": {"type": "integer", "minimum": 1},
                "is_kit": {"type": "boolean"},
                "free_shipping": {"type": "boolean"},
                "campaign_order": {"type": "boolean"},
                "order_date": {"type": "string", "format": "date"},
                "seller_voucher": {"type": "string", "example": "5.00"}
            }
        },
        "ComputeFeeRequest": {
            "type": "object",
            "properties": {
                "seller_voucher": {"type": "string", "example": "5.00"}
            }
        },
        "UpdateRuleSetRequest": {
            "type": "object",
            "required": ["rule_sets"],
            "properties": {
                "rule_sets": {"type": "array", "minItems": 1, "items": {"type": "object"}}
            }
        },
        "PaymentLine": {
            "type": "object",
            "required": ["external_ref", "amount", "occurred_at"],
            "properties": {
                "external_ref": {"type": "string", "maxLength": 128},
                "order_id": {"type": "string", "maxLength": 64, "example": "2000123456_AJUSTE"},
                "amount": {"type": "string", "example": "87.35"},
                "is_expense": {"type": "boolean"},
                "transaction_type": {"type": "string"},
                "description": {"type": "string"},
                "occurred_at": {"type": "string", "format": "date-time"}
            }
        },
        "IngestPaymentsRequest": {
            "type": "object",
            "required": ["lines"],
            "properties": {
                "lines": {"type": "array", "minItems": 1, "maxItems": 5000, "items": {"$ref": "#/definitions/PaymentLine"}},
                "archive": {"type": "boolean"}
            }
        },
        "PullPaymentsRequest": {
            "type": "object",
            "properties": {
                "since": {"type": "string", "format": "date-time"}
            }
        }
    }
}`

// SwaggerInfo holds the exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Marketplace Reconciler Admin API",
	Description:      "Differential ERP sync, order linking, fee engine and settlement reconciliation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
