package services_test

import (
	"context"
	"testing"

	"synthbridge/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-42")
	ctx = services.WithTool(ctx, "mri_synthstrip")
	ctx = services.WithStage(ctx, "invoking")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-42" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if tool, ok := services.ToolFromContext(ctx); !ok || tool != "mri_synthstrip" {
		t.Fatalf("unexpected tool: %v %v", tool, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "invoking" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithRunID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected no run id value")
	}
}
