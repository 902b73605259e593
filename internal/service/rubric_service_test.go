package service

import (
	"errors"
	"testing"

	"palette_backend/internal/model"
	"palette_backend/internal/util"
)

func TestCreateRubricWithDefaults(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)

	tpl, err := rubrics.CreateRubric(RubricReq{Name: "Bare Rubric"}, "teacher-1")
	if err != nil {
		t.Fatalf("create rubric: %v", err)
	}

	if len(tpl.Criteria) != 2 {
		t.Fatalf("expected default criteria pair, got %d", len(tpl.Criteria))
	}
	if tpl.Criteria[0].Description != "Quality of Work" || tpl.Criteria[1].Description != "Following Instructions" {
		t.Errorf("unexpected default criteria: %q, %q", tpl.Criteria[0].Description, tpl.Criteria[1].Description)
	}
	for _, criterion := range tpl.Criteria {
		if len(criterion.Ratings) != 5 {
			t.Fatalf("criterion %q: expected default rating ladder of 5, got %d", criterion.Description, len(criterion.Ratings))
		}
		if criterion.Ratings[0].Points != 10 || criterion.Ratings[4].Points != 0 {
			t.Errorf("criterion %q: ladder endpoints %v..%v, want 10..0",
				criterion.Description, criterion.Ratings[0].Points, criterion.Ratings[4].Points)
		}
	}
	if tpl.Version != 1 {
		t.Errorf("new rubric version = %d, want 1", tpl.Version)
	}
}

func TestEditUnusedRubricStaysInPlace(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)

	tpl, err := rubrics.CreateRubric(RubricReq{Name: "Draft"}, "teacher-1")
	if err != nil {
		t.Fatalf("create rubric: %v", err)
	}

	name := "Draft v2"
	id, err := rubrics.EditRubric(tpl.ID, RubricChanges{Name: &name}, "teacher-1")
	if err != nil {
		t.Fatalf("edit rubric: %v", err)
	}
	if id != tpl.ID {
		t.Fatalf("unused rubric was copied: %s != %s", id, tpl.ID)
	}

	got, err := rubrics.GetRubric(tpl.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Name != "Draft v2" || got.Version != 2 {
		t.Errorf("got name=%q version=%d, want Draft v2 / 2", got.Name, got.Version)
	}
}

func TestEditUsedRubricCopiesOnWrite(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	// An assessment pins the template.
	assessment := &model.RubricAssessment{
		SubmissionID:     fixture.Submission.ID,
		RubricTemplateID: tpl.ID,
		Score:            15,
	}
	if err := db.Create(assessment).Error; err != nil {
		t.Fatalf("seed assessment: %v", err)
	}

	name := "Project Rubric (revised)"
	newID, err := rubrics.EditRubric(tpl.ID, RubricChanges{Name: &name}, "teacher-1")
	if err != nil {
		t.Fatalf("edit rubric: %v", err)
	}
	if newID == tpl.ID {
		t.Fatal("used rubric was edited in place")
	}

	original, err := rubrics.GetRubric(tpl.ID)
	if err != nil {
		t.Fatalf("reload original: %v", err)
	}
	if original.IsActive {
		t.Error("original still active after copy-on-write")
	}
	if original.Name != "Project Rubric" {
		t.Errorf("original mutated: name = %q", original.Name)
	}

	revised, err := rubrics.GetRubric(newID)
	if err != nil {
		t.Fatalf("reload revision: %v", err)
	}
	if revised.Name != name || revised.Version != original.Version+1 {
		t.Errorf("revision name=%q version=%d, want %q / %d", revised.Name, revised.Version, name, original.Version+1)
	}
	if len(revised.Criteria) != len(original.Criteria) {
		t.Errorf("revision lost criteria: %d vs %d", len(revised.Criteria), len(original.Criteria))
	}

	// The untouched assessment still resolves against the original version.
	var pinned model.RubricAssessment
	if err := db.First(&pinned, "id = ?", assessment.ID).Error; err != nil {
		t.Fatalf("reload assessment: %v", err)
	}
	if pinned.RubricTemplateID != tpl.ID {
		t.Errorf("assessment repointed to %s, must stay on %s", pinned.RubricTemplateID, tpl.ID)
	}

	// The assignment grades future submissions against the revision.
	var assignment model.Assignment
	if err := db.First(&assignment, "id = ?", fixture.Assignment.ID).Error; err != nil {
		t.Fatalf("reload assignment: %v", err)
	}
	if assignment.RubricTemplateID == nil || *assignment.RubricTemplateID != newID {
		t.Error("assignment not repointed to the revision")
	}
}

func TestUpdateCriterionOnUnusedRubricStaysInPlace(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)

	tpl, err := rubrics.CreateRubric(RubricReq{
		Name:     "Draft",
		Criteria: []CriterionReq{{Description: "Depth", Points: 10}},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("create rubric: %v", err)
	}

	desc := "Depth of Analysis"
	ratings := []RatingReq{
		{Description: "Deep", Points: 10},
		{Description: "Shallow", Points: 0},
	}
	criterion, err := rubrics.UpdateCriterion(tpl.Criteria[0].ID, CriterionChanges{
		Description: &desc,
		Ratings:     &ratings,
	}, "teacher-1")
	if err != nil {
		t.Fatalf("update criterion: %v", err)
	}

	if criterion.ID != tpl.Criteria[0].ID {
		t.Fatal("unused criterion was replaced instead of edited")
	}
	if criterion.RubricTemplateID != tpl.ID {
		t.Fatal("unused criterion moved to another template")
	}
	if criterion.Description != desc {
		t.Errorf("description = %q, want %q", criterion.Description, desc)
	}
	if len(criterion.Ratings) != 2 || criterion.Ratings[1].Description != "Shallow" {
		t.Errorf("rating set not replaced: %+v", criterion.Ratings)
	}
}

func TestUpdateCriterionOnUsedRubricCopiesOnWrite(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	// A graded assessment pins the template and its criterion rows.
	assessment := &model.RubricAssessment{
		SubmissionID:     fixture.Submission.ID,
		RubricTemplateID: tpl.ID,
		Score:            8,
	}
	if err := db.Create(assessment).Error; err != nil {
		t.Fatalf("seed assessment: %v", err)
	}
	if err := db.Create(&model.CriterionAssessment{
		AssessmentID: assessment.ID,
		CriterionID:  tpl.Criteria[0].ID,
		Points:       8,
	}).Error; err != nil {
		t.Fatalf("seed criterion assessment: %v", err)
	}

	desc := "Correctness (stricter)"
	edited, err := rubrics.UpdateCriterion(tpl.Criteria[0].ID, CriterionChanges{Description: &desc}, "teacher-1")
	if err != nil {
		t.Fatalf("update criterion: %v", err)
	}

	if edited.RubricTemplateID == tpl.ID {
		t.Fatal("used rubric's criterion was edited in place")
	}
	if edited.Description != desc {
		t.Errorf("edit lost: description = %q", edited.Description)
	}

	// The graded criterion still reads exactly as it was scored.
	original, err := rubrics.Repo.FindCriterion(tpl.Criteria[0].ID)
	if err != nil {
		t.Fatalf("reload original criterion: %v", err)
	}
	if original.Description != "Correctness" {
		t.Errorf("graded criterion rewritten: %q", original.Description)
	}

	originalTpl, err := rubrics.GetRubric(tpl.ID)
	if err != nil {
		t.Fatalf("reload original template: %v", err)
	}
	if originalTpl.IsActive {
		t.Error("original template still active")
	}
	revised, err := rubrics.GetRubric(edited.RubricTemplateID)
	if err != nil {
		t.Fatalf("reload revision: %v", err)
	}
	if revised.Version != originalTpl.Version+1 {
		t.Errorf("revision version = %d, want %d", revised.Version, originalTpl.Version+1)
	}
	if len(revised.Criteria) != len(originalTpl.Criteria) {
		t.Errorf("revision has %d criteria, want %d", len(revised.Criteria), len(originalTpl.Criteria))
	}

	var assignment model.Assignment
	if err := db.First(&assignment, "id = ?", fixture.Assignment.ID).Error; err != nil {
		t.Fatalf("reload assignment: %v", err)
	}
	if assignment.RubricTemplateID == nil || *assignment.RubricTemplateID != revised.ID {
		t.Error("assignment not repointed to the revision")
	}

	var pinned model.RubricAssessment
	if err := db.First(&pinned, "id = ?", assessment.ID).Error; err != nil {
		t.Fatalf("reload assessment: %v", err)
	}
	if pinned.RubricTemplateID != tpl.ID {
		t.Error("assessment repointed off its graded version")
	}
}

func TestAddCriterionOnUsedRubricCopiesOnWrite(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	if err := db.Create(&model.RubricAssessment{
		SubmissionID:     fixture.Submission.ID,
		RubricTemplateID: tpl.ID,
	}).Error; err != nil {
		t.Fatalf("seed assessment: %v", err)
	}

	added, err := rubrics.AddCriterion(tpl.ID, CriterionReq{Description: "Creativity", Points: 5}, "teacher-1")
	if err != nil {
		t.Fatalf("add criterion: %v", err)
	}

	if added.RubricTemplateID == tpl.ID {
		t.Fatal("criterion added to a rubric with graded work")
	}
	if added.Position != 2 {
		t.Errorf("added criterion at position %d, want 2", added.Position)
	}

	original, err := rubrics.GetRubric(tpl.ID)
	if err != nil {
		t.Fatalf("reload original: %v", err)
	}
	if len(original.Criteria) != 2 {
		t.Errorf("original grew to %d criteria", len(original.Criteria))
	}
	revised, err := rubrics.GetRubric(added.RubricTemplateID)
	if err != nil {
		t.Fatalf("reload revision: %v", err)
	}
	if len(revised.Criteria) != 3 {
		t.Errorf("revision has %d criteria, want 3", len(revised.Criteria))
	}
}

func TestCopyRubricDropsCanvasIDs(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)

	tpl, err := rubrics.CreateRubric(RubricReq{
		Name:     "Shared",
		Criteria: []CriterionReq{{Description: "Depth", Points: 10}},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("create rubric: %v", err)
	}
	if err := rubrics.Repo.SetCanvasID(tpl.ID, "555"); err != nil {
		t.Fatalf("set canvas id: %v", err)
	}

	copy, err := rubrics.CopyRubric(tpl.ID, "", "teacher-2")
	if err != nil {
		t.Fatalf("copy rubric: %v", err)
	}
	if copy.ID == tpl.ID {
		t.Fatal("copy shares id with source")
	}
	if copy.Name != "Shared (Copy)" {
		t.Errorf("copy name = %q, want default suffix", copy.Name)
	}
	if copy.CanvasID != "" {
		t.Errorf("copy kept canvas id %q", copy.CanvasID)
	}
	if len(copy.Criteria) != 1 || len(copy.Criteria[0].Ratings) != 5 {
		t.Error("copy lost the criterion tree")
	}
	if copy.Criteria[0].ID == tpl.Criteria[0].ID {
		t.Error("copied criterion shares id with source")
	}
}

func TestDeleteCriterionRefusedWhenUsed(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)
	fixture := seedCourse(t, db)
	tpl := attachRubric(t, db, rubrics, fixture)

	assessment := &model.RubricAssessment{
		SubmissionID:     fixture.Submission.ID,
		RubricTemplateID: tpl.ID,
	}
	if err := db.Create(assessment).Error; err != nil {
		t.Fatalf("seed assessment: %v", err)
	}
	used := tpl.Criteria[0]
	if err := db.Create(&model.CriterionAssessment{
		AssessmentID: assessment.ID,
		CriterionID:  used.ID,
		Points:       8,
	}).Error; err != nil {
		t.Fatalf("seed criterion assessment: %v", err)
	}

	if err := rubrics.DeleteCriterion(used.ID); !errors.Is(err, util.ErrCriterionInUse) {
		t.Fatalf("expected ErrCriterionInUse, got %v", err)
	}

	// The unused sibling deletes cleanly, ratings and all.
	unused := tpl.Criteria[1]
	if err := rubrics.DeleteCriterion(unused.ID); err != nil {
		t.Fatalf("delete unused criterion: %v", err)
	}
	var ratingCount int64
	db.Model(&model.RubricRating{}).Where("criterion_id = ?", unused.ID).Count(&ratingCount)
	if ratingCount != 0 {
		t.Errorf("%d orphaned ratings left behind", ratingCount)
	}
}

func TestReorderCriteria(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)

	tpl, err := rubrics.CreateRubric(RubricReq{
		Name: "Ordered",
		Criteria: []CriterionReq{
			{Description: "A", Points: 5},
			{Description: "B", Points: 5},
			{Description: "C", Points: 5},
		},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("create rubric: %v", err)
	}

	reversed := []string{tpl.Criteria[2].ID, tpl.Criteria[1].ID, tpl.Criteria[0].ID}
	if err := rubrics.ReorderCriteria(tpl.ID, reversed); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	got, _ := rubrics.GetRubric(tpl.ID)
	for i, want := range []string{"C", "B", "A"} {
		if got.Criteria[i].Description != want || got.Criteria[i].Position != i {
			t.Errorf("position %d: got %q at %d, want %q", i, got.Criteria[i].Description, got.Criteria[i].Position, want)
		}
	}

	var verr *util.ValidationError
	if err := rubrics.ReorderCriteria(tpl.ID, reversed[:2]); !errors.As(err, &verr) {
		t.Errorf("partial order accepted: %v", err)
	}
}

func TestValidateRubricDuplicatePointsIsAdvisory(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)

	tpl, err := rubrics.CreateRubric(RubricReq{
		Name: "Loose",
		Criteria: []CriterionReq{{
			Description: "Effort",
			Points:      10,
			Ratings: []RatingReq{
				{Description: "Great", Points: 10},
				{Description: "Also great", Points: 10},
			},
		}},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("duplicate rating points blocked creation: %v", err)
	}

	issues, err := rubrics.ValidateRubric(tpl.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected one advisory issue, got %v", issues)
	}
}

func TestImportCanvasRubricDedupes(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)

	first, err := rubrics.ImportCanvasRubric(&model.RubricTemplate{
		CanvasID: "6062820",
		Name:     "Imported",
		IsActive: true,
		Version:  1,
	})
	if err != nil {
		t.Fatalf("first import: %v", err)
	}

	second, err := rubrics.ImportCanvasRubric(&model.RubricTemplate{
		CanvasID: "6062820",
		Name:     "Imported again",
		IsActive: true,
		Version:  1,
	})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("re-import created a duplicate template")
	}
	if second.Name != "Imported" {
		t.Errorf("existing template overwritten: %q", second.Name)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	db := newTestDB(t)
	rubrics := newRubricService(t, db)

	tpl, err := rubrics.CreateRubric(RubricReq{
		Name:           "Portable",
		PointsPossible: 10,
		Criteria:       []CriterionReq{{Description: "Clarity", Points: 10}},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("create rubric: %v", err)
	}

	export, err := rubrics.ExportRubric(tpl.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export.Version != "1.0" || export.Rubric.Name != "Portable" {
		t.Fatalf("unexpected export envelope: %+v", export)
	}

	imported, err := rubrics.ImportRubric(export, "teacher-2")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.ID == tpl.ID {
		t.Fatal("import reused the source template")
	}
	if len(imported.Criteria) != 1 || imported.Criteria[0].Description != "Clarity" {
		t.Error("import lost the criterion tree")
	}

	if _, err := rubrics.ImportRubric(&RubricExport{}, "teacher-2"); err == nil {
		t.Error("empty export accepted")
	}
}
