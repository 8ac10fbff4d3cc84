// Package docs registers the sensim OpenAPI document with swag.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Service health",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/similarity": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Similarity index matrix E[application][experiment]",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.SimilarityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SimilarityResponse"}},
                    "400": {"description": "Invalid request"},
                    "422": {"description": "Malformed sensitivity file or empty selection"}
                }
            }
        },
        "/contributions": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Nuclide and reaction contributions to the similarity index",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.ContributionsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Invalid request"}
                }
            }
        },
        "/compare": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Compare computed indices with a solver output file",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.CompareRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Invalid request"}
                }
            }
        },
        "/uncertainty/contributions": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Covariance contributions to the k-eff uncertainty",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.UncertaintyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Invalid request"},
                    "502": {"description": "Solver failed"}
                }
            }
        },
        "/metrics": {
            "get": {"produces": ["application/json"], "tags": ["system"], "summary": "Service counters", "responses": {"200": {"description": "OK"}}}
        },
        "/metrics/prometheus": {
            "get": {"produces": ["text/plain"], "tags": ["system"], "summary": "Prometheus exposition", "responses": {"200": {"description": "OK"}}}
        },
        "/cache/stats": {
            "get": {"produces": ["application/json"], "tags": ["system"], "summary": "Response cache statistics", "responses": {"200": {"description": "OK"}}}
        },
        "/traces": {
            "get": {"produces": ["application/json"], "tags": ["system"], "summary": "Recently finished request and analysis spans", "responses": {"200": {"description": "OK"}}}
        },
        "/alerts": {
            "get": {"produces": ["application/json"], "tags": ["system"], "summary": "Active and historical alerts", "responses": {"200": {"description": "OK"}}}
        }
    },
    "definitions": {
        "uncertain.Float": {
            "type": "object",
            "properties": {
                "value": {"type": "number"},
                "sigma": {"type": "number"}
            }
        },
        "types.SimilarityRequest": {
            "type": "object",
            "required": ["applications", "experiments"],
            "properties": {
                "applications": {"type": "array", "items": {"type": "string"}},
                "experiments": {"type": "array", "items": {"type": "string"}},
                "reaction": {"type": "string", "example": "all"},
                "mode": {"type": "string", "enum": ["correlated", "automatic", "manual"]}
            }
        },
        "types.SimilarityResponse": {
            "type": "object",
            "properties": {
                "mode": {"type": "string"},
                "reaction": {"type": "string"},
                "applications": {"type": "array", "items": {"type": "string"}},
                "experiments": {"type": "array", "items": {"type": "string"}},
                "matrix": {"type": "array", "items": {"type": "array", "items": {"$ref": "#/definitions/uncertain.Float"}}}
            }
        },
        "types.ContributionsRequest": {
            "type": "object",
            "required": ["applications", "experiments"],
            "properties": {
                "applications": {"type": "array", "items": {"type": "string"}},
                "experiments": {"type": "array", "items": {"type": "string"}},
                "clean": {"type": "boolean"},
                "allow": {"type": "object", "additionalProperties": {"type": "array", "items": {"type": "string"}}}
            }
        },
        "types.CompareRequest": {
            "type": "object",
            "required": ["applications", "experiments", "reference"],
            "properties": {
                "applications": {"type": "array", "items": {"type": "string"}},
                "experiments": {"type": "array", "items": {"type": "string"}},
                "reference": {"type": "string"},
                "indices": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "types.UncertaintyRequest": {
            "type": "object",
            "properties": {
                "output": {"type": "string"},
                "cases": {"type": "array", "items": {"type": "string"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "sensim API",
	Description:      "Similarity indices between sensitivity profiles of nuclear criticality cases.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
