package projection_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/websets-labs/orchestrator/projection"
	"github.com/websets-labs/orchestrator/upstream"
)

func companyItem(name string) upstream.Item {
	it := upstream.Item{ID: "item_1", URL: "https://example.com", Description: "desc", Content: "huge raw content blob"}
	it.Properties.Type = "company"
	it.Properties.Company.Name = name
	return it
}

func TestEntityNamePrecedence(t *testing.T) {
	it := companyItem("Acme")
	require.Equal(t, "Acme", projection.EntityName(it))

	it.Properties.Company.Name = ""
	it.Properties.Person.Name = "Jane Doe"
	require.Equal(t, "Jane Doe", projection.EntityName(it))

	it.Properties.Person.Name = ""
	it.Properties.Article.Title = "An Article"
	require.Equal(t, "An Article", projection.EntityName(it))

	it.Properties.Article.Title = ""
	it.Properties.ResearchPaper.Title = "A Paper"
	require.Equal(t, "A Paper", projection.EntityName(it))

	it.Properties.ResearchPaper.Title = ""
	it.Properties.Custom.Title = "Custom Title"
	require.Equal(t, "Custom Title", projection.EntityName(it))

	it.Properties.Custom.Title = ""
	require.Equal(t, "desc", projection.EntityName(it))

	it.Description = ""
	require.Equal(t, "unknown", projection.EntityName(it))
}

func TestProjectItemStripsRawFields(t *testing.T) {
	it := companyItem("Acme")
	it.Evaluations = []upstream.Evaluation{{Criterion: "is a company", Satisfied: "yes"}}
	it.Enrichments = []upstream.EnrichmentResult{{
		EnrichmentID: "enr_1",
		Description:  "headcount",
		Format:       upstream.FormatNumber,
		Status:       upstream.EnrichmentStatusCompleted,
		Result:       []string{"42"},
	}}

	p := projection.ProjectItem(it)
	require.Equal(t, "Acme", p.Name)
	require.Equal(t, "company", p.EntityType)
	require.Len(t, p.Evaluations, 1)
	require.Equal(t, "is a company", p.Evaluations[0].Criterion)
	require.Len(t, p.Enrichments, 1)
	require.Equal(t, "headcount", p.Enrichments[0].Description)
	require.Equal(t, []string{"42"}, p.Enrichments[0].Result)
}

func TestProjectItemIdempotent(t *testing.T) {
	// Invariant 10: projecting an already-projected item's source
	// upstream.Item yields the same projection on every call, since
	// ProjectItem is a pure function of its input.
	it := companyItem("Acme")
	first := projection.ProjectItem(it)
	second := projection.ProjectItem(it)
	require.Equal(t, first, second)
}

func TestHasSatisfiedEvaluation(t *testing.T) {
	noEvals := upstream.Item{}
	require.True(t, projection.HasSatisfiedEvaluation(noEvals))

	allNo := upstream.Item{Evaluations: []upstream.Evaluation{{Satisfied: "no"}, {Satisfied: "unclear"}}}
	require.False(t, projection.HasSatisfiedEvaluation(allNo))

	oneYes := upstream.Item{Evaluations: []upstream.Evaluation{{Satisfied: "no"}, {Satisfied: "yes"}}}
	require.True(t, projection.HasSatisfiedEvaluation(oneYes))
}

func TestProjectItemsEnvelope(t *testing.T) {
	pass := companyItem("Acme")
	pass.Evaluations = []upstream.Evaluation{{Criterion: "c", Satisfied: "yes"}}
	fail := companyItem("Globex")
	fail.Evaluations = []upstream.Evaluation{{Criterion: "c", Satisfied: "no"}}
	noEvals := companyItem("Initech")

	env := projection.ProjectItems([]upstream.Item{pass, fail, noEvals})
	require.Equal(t, 3, env.Total)
	require.Equal(t, 2, env.Included)
	require.Equal(t, 1, env.Excluded)
	require.Len(t, env.Data, 2)
}
