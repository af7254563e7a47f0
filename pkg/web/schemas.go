package web

import (
	"fmt"
	"strings"

	"github.com/recforge/recforge/pkg/pipeline"
	"github.com/xeipuuv/gojsonschema"
)

// Request models per pipeline, applied to the raw trigger body before the
// execution is created. Fields outside the model are rejected so typos in
// optional keys fail fast instead of silently running with defaults.
const (
	createRequestSchema = `{
		"type": "object",
		"additionalProperties": false,
		"required": ["name"],
		"properties": {
			"name":             {"type": "string", "minLength": 1, "maxLength": 63},
			"domain":           {"type": "string"},
			"dataset_group_arn":{"type": "string"},
			"schema_arn":       {"type": "string"},
			"bucket":           {"type": "string"},
			"item_bucket":      {"type": "string"},
			"item_schema_arn":  {"type": "string"},
			"user_bucket":      {"type": "string"},
			"user_schema_arn":  {"type": "string"},
			"recipe_arn":       {"type": "string"},
			"event_type":       {"type": "string"},
			"perform_hpo":      {"type": "boolean"},
			"solution_config":  {"type": "object"},
			"campaign_config":  {"type": "object"},
			"recommender_config": {"type": "object"},
			"deploy":           {"type": "boolean"},
			"suffix":           {"type": "string"}
		}
	}`

	batchRequestSchema = `{
		"type": "object",
		"additionalProperties": false,
		"required": ["name", "solution_version_arn", "input_path", "output_path"],
		"properties": {
			"name":                 {"type": "string", "minLength": 1, "maxLength": 63},
			"solution_version_arn": {"type": "string", "minLength": 1},
			"input_path":           {"type": "string", "pattern": "^s3://"},
			"output_path":          {"type": "string", "pattern": "^s3://"},
			"num_results":          {"type": "integer", "minimum": 1, "maximum": 500}
		}
	}`

	cleanupRequestSchema = `{
		"type": "object",
		"additionalProperties": false,
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1, "maxLength": 63}
		}
	}`
)

// RequestValidator validates trigger bodies against the pipeline's request model.
type RequestValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewRequestValidator() (*RequestValidator, error) {
	sources := map[string]string{
		pipeline.SimilarItems:        createRequestSchema,
		pipeline.Sims:                createRequestSchema,
		pipeline.UserPersonalization: createRequestSchema,
		pipeline.MetadataDataset:     createRequestSchema,
		pipeline.InteractionDataset:  createRequestSchema,
		pipeline.Ranking:             createRequestSchema,
		pipeline.TrainRecipe:         createRequestSchema,
		pipeline.TrainUsecase:        createRequestSchema,
		pipeline.Usecase:             createRequestSchema,
		pipeline.BatchInference:      batchRequestSchema,
		pipeline.BatchSegment:        batchRequestSchema,
		pipeline.Cleanup:             cleanupRequestSchema,
	}

	schemas := make(map[string]*gojsonschema.Schema, len(sources))

	for id, source := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile request schema for %s: %w", id, err)
		}

		schemas[id] = schema
	}

	return &RequestValidator{schemas: schemas}, nil
}

// Validate checks the raw trigger body for the given pipeline. A nil error
// means the body matches the pipeline's request model.
func (v *RequestValidator) Validate(pipelineID string, body []byte) error {
	schema, ok := v.schemas[pipelineID]
	if !ok {
		return fmt.Errorf("%w: %s", pipeline.ErrPipelineNotFound, pipelineID)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("request body is not valid JSON: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("invalid request: %s", strings.Join(details, "; "))
}
