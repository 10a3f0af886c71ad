// Package schema validates raw upstream response bodies against JSON schemas
// before they are decoded into typed structs.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON schema with a name used in error messages.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// MustCompile compiles a JSON schema document and panics if it is invalid.
func MustCompile(name, src string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	return &Schema{name: name, schema: s}
}

// Validate checks doc against the schema. Documents that are not valid JSON
// are reported as errors too.
func (s *Schema) Validate(doc []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%s: failed to load document: %w", s.name, err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("%s: validation failed: %s", s.name, strings.Join(errs, "; "))
	}

	return nil
}

// VisionResponse describes the subset of the images:annotate response the
// feature extractor reads.
var VisionResponse = MustCompile("vision response", `{
	"type": "object",
	"required": ["responses"],
	"properties": {
		"responses": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"labelAnnotations": {"$ref": "#/definitions/entities"},
					"textAnnotations": {"$ref": "#/definitions/entities"},
					"logoAnnotations": {"$ref": "#/definitions/entities"},
					"localizedObjectAnnotations": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"name": {"type": "string"},
								"score": {"type": "number"}
							}
						}
					},
					"webDetection": {
						"type": "object",
						"properties": {
							"webEntities": {"$ref": "#/definitions/entities"}
						}
					},
					"error": {
						"type": "object",
						"properties": {
							"code": {"type": "integer"},
							"message": {"type": "string"}
						}
					}
				}
			}
		}
	},
	"definitions": {
		"entities": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"description": {"type": "string"},
					"score": {"type": "number"}
				}
			}
		}
	}
}`)

// SearchResponse describes the subset of the Custom Search JSON API response
// the listing searcher reads. "items" is absent when nothing matched.
var SearchResponse = MustCompile("search response", `{
	"type": "object",
	"properties": {
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"snippet": {"type": "string"},
					"link": {"type": "string"}
				}
			}
		}
	}
}`)

// FeatureResponse describes the JSON object the Gemini extractor asks the
// model to produce.
var FeatureResponse = MustCompile("feature response", `{
	"type": "object",
	"properties": {
		"labels": {"$ref": "#/definitions/strings"},
		"texts": {"$ref": "#/definitions/strings"},
		"objects": {"$ref": "#/definitions/strings"},
		"logos": {"$ref": "#/definitions/strings"},
		"webEntities": {"$ref": "#/definitions/strings"}
	},
	"definitions": {
		"strings": {"type": "array", "items": {"type": "string"}}
	}
}`)
