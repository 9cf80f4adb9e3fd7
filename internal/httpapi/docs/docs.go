// Package docs holds the OpenAPI document of the HTTP gateway, served under
// /swagger when the binary is built with -tags=swagger.
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
		"/healthz": {
			"get": {
				"tags": [
					"health"
				],
				"summary": "Liveness probe",
				"produces": [
					"text/plain"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				}
			}
		},
		"/readyz": {
			"get": {
				"tags": [
					"health"
				],
				"summary": "Readiness probe",
				"produces": [
					"text/plain"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"503": {
						"description": "Model not ready"
					}
				}
			}
		},
		"/status": {
			"get": {
				"tags": [
					"health"
				],
				"summary": "Lifecycle and resource status",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/types.StatusResponse"
						}
					}
				}
			}
		},
		"/v1/models": {
			"get": {
				"tags": [
					"models"
				],
				"summary": "List model files in the models directory",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"500": {
						"description": "Runtime or internal error",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					}
				}
			}
		},
		"/v1/load": {
			"post": {
				"tags": [
					"models"
				],
				"summary": "Load the model",
				"produces": [
					"application/json"
				],
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/types.ModelOptions"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/types.Result"
						}
					},
					"400": {
						"description": "Invalid request",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"409": {
						"description": "Model not loaded or already loaded",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"499": {
						"description": "Cancelled",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"500": {
						"description": "Runtime or internal error",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					}
				}
			}
		},
		"/v1/predict": {
			"post": {
				"tags": [
					"inference"
				],
				"summary": "Generate a completion",
				"produces": [
					"application/json"
				],
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/types.PredictOptions"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/httpapi.replyView"
						}
					},
					"400": {
						"description": "Invalid request",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"409": {
						"description": "Model not loaded or already loaded",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"429": {
						"description": "Engine busy",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"499": {
						"description": "Cancelled",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"500": {
						"description": "Runtime or internal error",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"501": {
						"description": "Capability not supported",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					}
				}
			}
		},
		"/v1/predict/stream": {
			"post": {
				"tags": [
					"inference"
				],
				"summary": "Stream a completion as NDJSON",
				"produces": [
					"application/x-ndjson"
				],
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/types.PredictOptions"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"400": {
						"description": "Invalid request",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"409": {
						"description": "Model not loaded or already loaded",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"429": {
						"description": "Engine busy",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"499": {
						"description": "Cancelled",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"500": {
						"description": "Runtime or internal error",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"501": {
						"description": "Capability not supported",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					}
				}
			}
		},
		"/v1/embedding": {
			"post": {
				"tags": [
					"inference"
				],
				"summary": "Compute an embedding",
				"produces": [
					"application/json"
				],
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/types.PredictOptions"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/types.EmbeddingResult"
						}
					},
					"400": {
						"description": "Invalid request",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"409": {
						"description": "Model not loaded or already loaded",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"429": {
						"description": "Engine busy",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"499": {
						"description": "Cancelled",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"500": {
						"description": "Runtime or internal error",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"501": {
						"description": "Capability not supported",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					}
				}
			}
		},
		"/v1/image": {
			"post": {
				"tags": [
					"inference"
				],
				"summary": "Generate an image",
				"produces": [
					"application/json"
				],
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/types.GenerateImageRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/types.Result"
						}
					},
					"400": {
						"description": "Invalid request",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"409": {
						"description": "Model not loaded or already loaded",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"429": {
						"description": "Engine busy",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"499": {
						"description": "Cancelled",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"500": {
						"description": "Runtime or internal error",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"501": {
						"description": "Capability not supported",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					}
				}
			}
		},
		"/v1/transcription": {
			"post": {
				"tags": [
					"inference"
				],
				"summary": "Transcribe an audio file",
				"produces": [
					"application/json"
				],
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/types.TranscriptRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/types.TranscriptResult"
						}
					},
					"400": {
						"description": "Invalid request",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"409": {
						"description": "Model not loaded or already loaded",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"429": {
						"description": "Engine busy",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"499": {
						"description": "Cancelled",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"500": {
						"description": "Runtime or internal error",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"501": {
						"description": "Capability not supported",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					}
				}
			}
		},
		"/v1/tts": {
			"post": {
				"tags": [
					"inference"
				],
				"summary": "Synthesize speech",
				"produces": [
					"application/json"
				],
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/types.TtsRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/types.Result"
						}
					},
					"400": {
						"description": "Invalid request",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"409": {
						"description": "Model not loaded or already loaded",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"429": {
						"description": "Engine busy",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"499": {
						"description": "Cancelled",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"500": {
						"description": "Runtime or internal error",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"501": {
						"description": "Capability not supported",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					}
				}
			}
		},
		"/v1/tokenize": {
			"post": {
				"tags": [
					"inference"
				],
				"summary": "Tokenize a prompt",
				"produces": [
					"application/json"
				],
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"in": "body",
						"name": "request",
						"required": true,
						"schema": {
							"$ref": "#/definitions/types.PredictOptions"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/types.TokenizationResponse"
						}
					},
					"400": {
						"description": "Invalid request",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"409": {
						"description": "Model not loaded or already loaded",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"429": {
						"description": "Engine busy",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"499": {
						"description": "Cancelled",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"500": {
						"description": "Runtime or internal error",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					},
					"501": {
						"description": "Capability not supported",
						"schema": {
							"$ref": "#/definitions/types.ErrorResponse"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"types.ModelOptions": {
			"type": "object",
			"properties": {
				"model": {
					"type": "string",
					"example": "tinyllama-q4"
				},
				"model_file": {
					"type": "string",
					"example": "tinyllama.Q4_K_M.gguf"
				},
				"model_path": {
					"type": "string"
				},
				"backend": {
					"type": "string",
					"example": "llama"
				},
				"context_size": {
					"type": "integer",
					"example": 4096
				},
				"seed": {
					"type": "integer"
				},
				"threads": {
					"type": "integer"
				},
				"gpu_layers": {
					"type": "integer",
					"example": 99
				},
				"f16": {
					"type": "boolean"
				},
				"mmap": {
					"type": "boolean"
				},
				"embeddings": {
					"type": "boolean"
				},
				"parallel": {
					"type": "boolean"
				},
				"options": {
					"type": "array",
					"items": {
						"type": "string"
					}
				}
			}
		},
		"types.PredictOptions": {
			"type": "object",
			"properties": {
				"prompt": {
					"type": "string",
					"example": "Write a haiku about the ocean."
				},
				"embeddings": {
					"type": "string"
				},
				"images": {
					"type": "array",
					"items": {
						"type": "string"
					}
				},
				"tokens": {
					"type": "integer",
					"example": 128
				},
				"temperature": {
					"type": "number"
				},
				"top_p": {
					"type": "number"
				},
				"top_k": {
					"type": "integer",
					"example": 40
				},
				"min_p": {
					"type": "number"
				},
				"penalty": {
					"type": "number"
				},
				"seed": {
					"type": "integer"
				},
				"threads": {
					"type": "integer"
				},
				"stop_prompts": {
					"type": "array",
					"items": {
						"type": "string"
					}
				},
				"ignore_eos": {
					"type": "boolean"
				},
				"echo": {
					"type": "boolean"
				}
			}
		},
		"httpapi.replyView": {
			"type": "object",
			"properties": {
				"message": {
					"type": "string"
				},
				"tokens": {
					"type": "integer"
				},
				"prompt_tokens": {
					"type": "integer"
				},
				"timing_prompt_processing": {
					"type": "number"
				},
				"timing_token_generation": {
					"type": "number"
				}
			}
		},
		"types.Result": {
			"type": "object",
			"properties": {
				"success": {
					"type": "boolean"
				},
				"message": {
					"type": "string"
				}
			}
		},
		"types.EmbeddingResult": {
			"type": "object",
			"properties": {
				"embeddings": {
					"type": "array",
					"items": {
						"type": "number"
					}
				}
			}
		},
		"types.GenerateImageRequest": {
			"type": "object",
			"properties": {
				"positive_prompt": {
					"type": "string",
					"example": "a lighthouse at dusk, oil painting"
				},
				"negative_prompt": {
					"type": "string"
				},
				"width": {
					"type": "integer",
					"example": 512
				},
				"height": {
					"type": "integer",
					"example": 512
				},
				"step": {
					"type": "integer",
					"example": 20
				},
				"seed": {
					"type": "integer"
				},
				"cfg_scale": {
					"type": "number"
				},
				"src": {
					"type": "string"
				},
				"dst": {
					"type": "string",
					"example": "/tmp/out.png"
				}
			},
			"required": [
				"positive_prompt",
				"dst"
			]
		},
		"types.TranscriptRequest": {
			"type": "object",
			"properties": {
				"dst": {
					"type": "string",
					"example": "/tmp/audio.wav"
				},
				"language": {
					"type": "string",
					"example": "en"
				},
				"translate": {
					"type": "boolean"
				},
				"threads": {
					"type": "integer"
				}
			},
			"required": [
				"dst"
			]
		},
		"types.TranscriptSegment": {
			"type": "object",
			"properties": {
				"id": {
					"type": "integer"
				},
				"start": {
					"type": "integer"
				},
				"end": {
					"type": "integer"
				},
				"text": {
					"type": "string"
				},
				"tokens": {
					"type": "array",
					"items": {
						"type": "integer"
					}
				}
			}
		},
		"types.TranscriptResult": {
			"type": "object",
			"properties": {
				"segments": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/types.TranscriptSegment"
					}
				},
				"text": {
					"type": "string"
				}
			}
		},
		"types.TtsRequest": {
			"type": "object",
			"properties": {
				"text": {
					"type": "string",
					"example": "Hello there."
				},
				"model": {
					"type": "string"
				},
				"dst": {
					"type": "string",
					"example": "/tmp/speech.wav"
				},
				"voice": {
					"type": "string"
				},
				"language": {
					"type": "string"
				}
			},
			"required": [
				"text",
				"dst"
			]
		},
		"types.TokenizationResponse": {
			"type": "object",
			"properties": {
				"length": {
					"type": "integer"
				},
				"tokens": {
					"type": "array",
					"items": {
						"type": "integer"
					}
				}
			}
		},
		"types.MemoryUsageData": {
			"type": "object",
			"properties": {
				"total": {
					"type": "integer",
					"example": 734003200
				},
				"breakdown": {
					"type": "object",
					"additionalProperties": {
						"type": "integer"
					}
				},
				"percent": {
					"type": "number"
				}
			}
		},
		"types.StatusResponse": {
			"type": "object",
			"properties": {
				"state": {
					"type": "string",
					"example": "ready"
				},
				"busy": {
					"type": "boolean"
				},
				"model": {
					"type": "string",
					"example": "tinyllama-q4"
				},
				"backend": {
					"type": "string",
					"example": "llama"
				},
				"capabilities": {
					"type": "array",
					"items": {
						"type": "string"
					}
				},
				"error": {
					"type": "string"
				},
				"memory": {
					"$ref": "#/definitions/types.MemoryUsageData"
				},
				"cpu_percent": {
					"description": "CPU use of the process and engine children, in percent of one core.",
					"type": "number",
					"example": 12.5
				},
				"inflight": {
					"type": "integer"
				},
				"queued": {
					"type": "integer"
				},
				"max_queue_depth": {
					"type": "integer"
				},
				"uptime_seconds": {
					"type": "integer",
					"example": 3600
				},
				"loaded_at_unix": {
					"type": "integer",
					"example": 1700000000
				},
				"loads_total": {
					"type": "integer",
					"example": 1
				}
			}
		},
		"types.ErrorResponse": {
			"type": "object",
			"properties": {
				"error": {
					"type": "string",
					"example": "model not loaded"
				},
				"kind": {
					"type": "string",
					"example": "NotLoaded"
				},
				"code": {
					"type": "integer",
					"example": 409
				}
			}
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "modelrunner API",
	Description:      "HTTP gateway for a single-model inference backend.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
