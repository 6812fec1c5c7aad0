package httpadapter

import (
	"context"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

func TestOpenAPIDocumentIsValid(t *testing.T) {
	if err := ValidateOpenAPISpec(context.Background()); err != nil {
		t.Fatalf("ValidateOpenAPISpec() error = %v", err)
	}
}

func TestOpenAPIDocumentCoversServedRoutes(t *testing.T) {
	doc, err := openapi3.NewLoader().LoadFromData(openapiSpec)
	if err != nil {
		t.Fatalf("load document: %v", err)
	}

	for _, path := range []string{
		"/healthz",
		"/v1/search",
		"/v1/tools/{toolId}",
		"/v1/tools/{toolId}/datasheet",
		"/v1/catalog/import",
		"/v1/tasks/{taskId}",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("path %s is served but undocumented", path)
		}
	}
}
