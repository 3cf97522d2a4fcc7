// Package setup emits the administrative artifacts used to prepare the claim
// knowledge base: the bulk-import invocation and the vector index descriptor.
package setup

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

type VectorField struct {
	Type          string `json:"type" yaml:"type"`
	Path          string `json:"path" yaml:"path"`
	NumDimensions int    `json:"numDimensions" yaml:"numDimensions"`
	Similarity    string `json:"similarity" yaml:"similarity"`
}

type IndexDefinition struct {
	Fields []VectorField `json:"fields" yaml:"fields"`
}

// IndexConfig is registered manually in the vector search console.
type IndexConfig struct {
	Name       string          `json:"name" yaml:"name"`
	Type       string          `json:"type" yaml:"type"`
	Definition IndexDefinition `json:"definition" yaml:"definition"`
}

func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		Name: "description_index",
		Type: "vectorSearch",
		Definition: IndexDefinition{
			Fields: []VectorField{{
				Type:          "vector",
				Path:          "descriptionEmbedding",
				NumDimensions: 1024,
				Similarity:    "cosine",
			}},
		},
	}
}

type ImportSpec struct {
	URI        string
	Database   string
	Collection string
	File       string
}

func DefaultImportSpec() ImportSpec {
	return ImportSpec{
		URI:        "mongodb+srv://<user>:<password>@<cluster>",
		Database:   "insurance_claims",
		Collection: "policy_documents_v2",
		File:       "data/insurance_agentic.policy.json",
	}
}

// ImportCommand documents the one-shot bulk import that seeds the collection.
func ImportCommand(spec ImportSpec) string {
	uri := strings.TrimRight(spec.URI, "/") + "/" + spec.Database
	return fmt.Sprintf("mongoimport --uri %q --collection %s --file %s --jsonArray --drop",
		uri, spec.Collection, spec.File)
}

func WriteIndexConfig(w io.Writer, cfg IndexConfig, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode index config json: %w", err)
		}
		return nil
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode index config yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush index config yaml: %w", err)
		}
		return nil
	default:
		return domain.WrapError(domain.ErrInvalidInput, "write index config", fmt.Errorf("unsupported format %q", format))
	}
}
