package services

import (
	"context"
	"testing"

	"github.com/veritext/veritext-backend/internal/domain"
	"github.com/veritext/veritext-backend/internal/platform/apierr"
)

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.material.Register(ctx, RegisterMaterialInput{CourseID: "c1"}); apierr.CodeOf(err) != apierr.CodeInvalidInput {
		t.Fatalf("missing sourceUrl: err = %v, want invalid_input", err)
	}
	if _, err := env.material.Register(ctx, RegisterMaterialInput{SourceURL: "https://x.test/a.txt"}); apierr.CodeOf(err) != apierr.CodeInvalidInput {
		t.Fatalf("missing owner: err = %v, want invalid_input", err)
	}

	m, err := env.material.Register(ctx, RegisterMaterialInput{
		SubmissionID: "sub-1",
		SourceURL:    "https://x.test/papers/final-draft.txt",
	})
	if err != nil {
		t.Fatalf("register submission material: %v", err)
	}
	if m.OwnerType != domain.OwnerSubmissionMaterial {
		t.Fatalf("ownerType = %q, want submissionMaterial", m.OwnerType)
	}
	if m.Title != "final-draft.txt" {
		t.Fatalf("title = %q, want filename fallback", m.Title)
	}
	if m.ProcessingStatus != domain.StatusPending {
		t.Fatalf("status = %q, want pending", m.ProcessingStatus)
	}
}

func TestListRequiresExactlyOneFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.material.List(ctx, "", ""); apierr.CodeOf(err) != apierr.CodeInvalidInput {
		t.Fatalf("no filter: err = %v, want invalid_input", err)
	}
	if _, err := env.material.List(ctx, "c1", "s1"); apierr.CodeOf(err) != apierr.CodeInvalidInput {
		t.Fatalf("both filters: err = %v, want invalid_input", err)
	}

	registerCourseMaterial(t, env, "c1", "https://x.test/a.txt")
	registerCourseMaterial(t, env, "c1", "https://x.test/b.txt")
	out, err := env.material.List(ctx, "c1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("materials = %d, want 2", len(out))
	}
}

func TestDeleteMaterialRemovesChunksAndVectors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	url := env.serve("/doc.txt", longProse(15))
	m := registerCourseMaterial(t, env, "course-1", url)
	ing, err := env.ingestion.Ingest(ctx, m.ID)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	res, err := env.material.DeleteMaterial(ctx, m.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.ChunksDeleted != int64(ing.NumChunks) {
		t.Fatalf("chunksDeleted = %d, want %d", res.ChunksDeleted, ing.NumChunks)
	}
	if res.EmbeddingsDeleted != ing.NumChunks {
		t.Fatalf("embeddingsDeleted = %d, want %d", res.EmbeddingsDeleted, ing.NumChunks)
	}
	if got := env.indexes[domain.NamespaceCourse].Size(); got != 0 {
		t.Fatalf("index size = %d after delete, want 0", got)
	}

	if _, err := env.material.DeleteMaterial(ctx, m.ID); !apierr.IsNotFound(err) {
		t.Fatalf("second delete: err = %v, want not_found", err)
	}
}

func TestDeleteCourseAggregatesCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	wantChunks := 0
	for i := 0; i < 3; i++ {
		url := env.serve("/doc"+string(rune('a'+i))+".txt", longProse(10+i))
		m := registerCourseMaterial(t, env, "course-del", url)
		ing, err := env.ingestion.Ingest(ctx, m.ID)
		if err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
		wantChunks += ing.NumChunks
	}

	res, err := env.material.DeleteCourse(ctx, "course-del")
	if err != nil {
		t.Fatalf("delete course: %v", err)
	}
	if res.MaterialsDeleted != 3 {
		t.Fatalf("materialsDeleted = %d, want 3", res.MaterialsDeleted)
	}
	if res.ChunksDeleted != int64(wantChunks) || res.EmbeddingsDeleted != wantChunks {
		t.Fatalf("counts = (%d chunks, %d embeddings), want %d of each",
			res.ChunksDeleted, res.EmbeddingsDeleted, wantChunks)
	}
	if got := env.indexes[domain.NamespaceCourse].Size(); got != 0 {
		t.Fatalf("index size = %d after course delete, want 0", got)
	}

	if _, err := env.material.DeleteCourse(ctx, "course-del"); !apierr.IsNotFound(err) {
		t.Fatalf("second course delete: err = %v, want not_found", err)
	}
}

func TestResetNamespace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	courseURL := env.serve("/c.txt", longProse(10))
	cm := registerCourseMaterial(t, env, "course-1", courseURL)
	ing, err := env.ingestion.Ingest(ctx, cm.ID)
	if err != nil {
		t.Fatalf("ingest course: %v", err)
	}

	subURL := env.serve("/s.txt", longProse(8))
	sm, err := env.material.Register(ctx, RegisterMaterialInput{SubmissionID: "sub-1", SourceURL: subURL})
	if err != nil {
		t.Fatalf("register submission: %v", err)
	}
	subIng, err := env.ingestion.Ingest(ctx, sm.ID)
	if err != nil {
		t.Fatalf("ingest submission: %v", err)
	}

	res, err := env.material.ResetNamespace(ctx, domain.NamespaceCourse)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if res.MaterialsDeleted != 1 || res.ChunksDeleted != int64(ing.NumChunks) || res.VectorsDropped != ing.NumChunks {
		t.Fatalf("reset = %+v, want 1 material, %d chunks, %d vectors", res, ing.NumChunks, ing.NumChunks)
	}
	if got := env.indexes[domain.NamespaceCourse].Size(); got != 0 {
		t.Fatalf("course index size = %d, want 0", got)
	}

	// The other namespace is untouched.
	if got := env.indexes[domain.NamespaceSubmission].Size(); got != subIng.NumChunks {
		t.Fatalf("submission index size = %d, want %d", got, subIng.NumChunks)
	}

	if _, err := env.material.ResetNamespace(ctx, domain.NamespaceCourse); !apierr.IsNotFound(err) {
		t.Fatalf("reset of empty namespace: err = %v, want not_found", err)
	}
}
