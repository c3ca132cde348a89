package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadworks/squad/internal/agents"
	"github.com/squadworks/squad/internal/agents/agentstest"
	"github.com/squadworks/squad/internal/completion"
	"github.com/squadworks/squad/internal/guardrails"
	"github.com/squadworks/squad/internal/metrics"
	"github.com/squadworks/squad/internal/workflow"
	"github.com/squadworks/squad/pkg/models"
)

const (
	task       = "Write a concise PySpark script for 500GB of shipping logs, partitioned by event_date."
	goodScript = "schema = StructType([])\ndf = df.withColumn('event_date', to_date(col('ts')))\ndf.write.partitionBy('event_date')"
	badScript  = "df = spark.read.json(path)"
	infraReply = "--- SECTION 1: AWS Glue (Terraform) ---\nresource \"aws_glue_job\" \"job\" {}"
)

func fenced(code string) string {
	return "Here is the script:\n```python\n" + code + "\n```\nLet me know."
}

type fixture struct {
	drafter  *agentstest.ScriptedCompleter
	deployer *agentstest.ScriptedCompleter
	engine   *workflow.Engine
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, drafts []agentstest.Response, deploy agentstest.Response) *fixture {
	t.Helper()
	cat, err := agents.DefaultCatalog()
	require.NoError(t, err)
	draftProfile, err := cat.ForRole(models.AgentRoleDrafting, "test-model")
	require.NoError(t, err)
	deployProfile, err := cat.ForRole(models.AgentRoleDeployment, "test-model")
	require.NoError(t, err)

	f := &fixture{
		drafter:  agentstest.NewScriptedCompleter(drafts...),
		deployer: agentstest.NewScriptedCompleter(deploy),
		metrics:  metrics.New(),
	}
	f.engine = workflow.NewEngine(
		agents.New(draftProfile, f.drafter, f.metrics),
		agents.New(deployProfile, f.deployer, f.metrics),
		guardrails.NewQualityGate(),
		workflow.WithMetrics(f.metrics),
	)
	return f
}

func stages(run *models.PipelineRun) []models.Stage {
	out := make([]models.Stage, 0, len(run.Transitions))
	for _, tr := range run.Transitions {
		out = append(out, tr.Stage)
	}
	return out
}

func TestRun_ApprovedOnFirstDraft(t *testing.T) {
	f := newFixture(t,
		[]agentstest.Response{agentstest.Reply(fenced(goodScript))},
		agentstest.Reply(infraReply),
	)

	run, err := f.engine.Run(context.Background(), task, workflow.DefaultMaxReviewCycles)
	require.NoError(t, err)

	assert.True(t, run.Approved)
	assert.Equal(t, models.RunStatusApproved, run.Status)
	assert.Equal(t, 0, run.CyclesExecuted)
	assert.Equal(t, goodScript, run.FinalScript)
	assert.Equal(t, infraReply, run.InfraText)
	assert.Equal(t, "Data_Architect", run.DraftingAgent)
	assert.Equal(t, "Cloud_Architect", run.DeploymentAgent)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 1, f.drafter.Calls())
	assert.Equal(t, 1, f.deployer.Calls())

	assert.Equal(t, []models.Stage{
		models.StageDrafting,
		models.StageValidating,
		models.StageApproved,
		models.StageDeploying,
		models.StageDone,
	}, stages(run))

	require.Len(t, run.Transcript, 4)
	assert.Equal(t, models.Message{Role: models.RoleUser, Name: workflow.AdminName, Content: task}, run.Transcript[0])
	assert.Equal(t, "Data_Architect", run.Transcript[1].Name)
	assert.Equal(t, workflow.DeploymentRequest(goodScript), run.Transcript[2].Content)
	assert.Equal(t, "Cloud_Architect", run.Transcript[3].Name)
}

func TestRun_RevisesUntilApproved(t *testing.T) {
	f := newFixture(t,
		[]agentstest.Response{
			agentstest.Reply(fenced(badScript)),
			agentstest.Reply(fenced("df.write.partitionBy('event_date')")),
			agentstest.Reply(fenced(goodScript)),
		},
		agentstest.Reply(infraReply),
	)

	run, err := f.engine.Run(context.Background(), task, 4)
	require.NoError(t, err)

	assert.True(t, run.Approved)
	assert.Equal(t, 2, run.CyclesExecuted)
	assert.Equal(t, goodScript, run.FinalScript)
	require.Len(t, run.Validations, 3)
	assert.Len(t, run.Validations[0].Failures, 3)
	assert.Len(t, run.Validations[1].Failures, 2)
	assert.True(t, run.Validations[2].Passed)

	// The revision goes back to the same agent thread with one
	// remediation instruction per line.
	reqs := f.drafter.Requests()
	require.Len(t, reqs, 3)
	revision := reqs[1].Messages[len(reqs[1].Messages)-1].Content
	assert.Equal(t, workflow.RevisionRequest(run.Validations[0]), revision)
	for _, failure := range run.Validations[0].Failures {
		assert.Contains(t, revision, failure.Message+"\n")
	}
	// Earlier turns of the thread are resent.
	assert.Equal(t, task, reqs[1].Messages[1].Content)
}

func TestRun_BestEffortAfterBudget(t *testing.T) {
	drafts := make([]agentstest.Response, 0, 5)
	for i := 0; i < 5; i++ {
		drafts = append(drafts, agentstest.Reply(fenced(fmt.Sprintf("%s # v%d", badScript, i))))
	}
	f := newFixture(t, drafts, agentstest.Reply(infraReply))

	run, err := f.engine.Run(context.Background(), task, 4)
	require.NoError(t, err)

	assert.False(t, run.Approved)
	assert.Equal(t, models.RunStatusBestEffort, run.Status)
	assert.Equal(t, 4, run.CyclesExecuted)
	assert.Equal(t, badScript+" # v4", run.FinalScript)
	assert.Equal(t, 5, f.drafter.Calls())
	assert.Equal(t, 1, f.deployer.Calls())
	assert.Len(t, run.Validations, 5)
	assert.Contains(t, stages(run), models.StageBestEffort)
	assert.NotContains(t, stages(run), models.StageApproved)
}

func TestRun_ZeroCyclesBestEffortKeepsDraft(t *testing.T) {
	f := newFixture(t,
		[]agentstest.Response{agentstest.Reply(fenced(badScript))},
		agentstest.Reply(infraReply),
	)

	run, err := f.engine.Run(context.Background(), task, 0)
	require.NoError(t, err)

	assert.False(t, run.Approved)
	assert.Equal(t, models.RunStatusBestEffort, run.Status)
	assert.Equal(t, 0, run.CyclesExecuted)
	assert.Equal(t, badScript, run.FinalScript)
	assert.Equal(t, 1, f.drafter.Calls())
	assert.NotContains(t, stages(run), models.StageRevising)
}

func TestRun_RevisionBoundHoldsForAllBudgets(t *testing.T) {
	for budget := 0; budget <= 6; budget++ {
		t.Run(fmt.Sprintf("budget=%d", budget), func(t *testing.T) {
			drafts := make([]agentstest.Response, 0, budget+1)
			for i := 0; i <= budget; i++ {
				drafts = append(drafts, agentstest.Reply(badScript))
			}
			f := newFixture(t, drafts, agentstest.Reply(infraReply))

			run, err := f.engine.Run(context.Background(), task, budget)
			require.NoError(t, err)

			revisions := 0
			for _, s := range stages(run) {
				if s == models.StageRevising {
					revisions++
				}
			}
			assert.Equal(t, budget, revisions)
			assert.LessOrEqual(t, run.CyclesExecuted, budget)
			assert.Equal(t, budget+1, f.drafter.Calls())
		})
	}
}

func TestRun_NegativeBudgetTreatedAsZero(t *testing.T) {
	f := newFixture(t,
		[]agentstest.Response{agentstest.Reply(badScript)},
		agentstest.Reply(infraReply),
	)

	run, err := f.engine.Run(context.Background(), task, -3)
	require.NoError(t, err)
	assert.Equal(t, 0, run.MaxReviewCycles)
	assert.Equal(t, 0, run.CyclesExecuted)
}

func TestRun_EmptyExtractionConsumesCycle(t *testing.T) {
	f := newFixture(t,
		[]agentstest.Response{
			agentstest.Reply("   "),
			agentstest.Reply(fenced(goodScript)),
		},
		agentstest.Reply(infraReply),
	)

	run, err := f.engine.Run(context.Background(), task, 2)
	require.NoError(t, err)

	assert.True(t, run.Approved)
	assert.Equal(t, 1, run.CyclesExecuted)
	assert.Len(t, run.Validations[0].Failures, 3)
}

func TestRun_UnfencedReplyIsTreatedAsScript(t *testing.T) {
	f := newFixture(t,
		[]agentstest.Response{agentstest.Reply(goodScript)},
		agentstest.Reply(infraReply),
	)

	run, err := f.engine.Run(context.Background(), task, 1)
	require.NoError(t, err)
	assert.True(t, run.Approved)
	assert.Equal(t, goodScript, run.FinalScript)
}

func TestRun_DeploymentTextNotParsedAsCode(t *testing.T) {
	infra := "Intro\n```hcl\nresource {}\n```\nOutro"
	f := newFixture(t,
		[]agentstest.Response{agentstest.Reply(fenced(goodScript))},
		agentstest.Reply(infra),
	)

	run, err := f.engine.Run(context.Background(), task, 1)
	require.NoError(t, err)
	assert.Equal(t, infra, run.InfraText)
}

func TestRun_DraftTransportErrorAborts(t *testing.T) {
	boom := &completion.TransportError{StatusCode: 500, Body: "oops"}
	f := newFixture(t, []agentstest.Response{agentstest.Fail(boom)}, agentstest.Reply(infraReply))

	run, err := f.engine.Run(context.Background(), task, 4)
	require.Error(t, err)
	assert.Nil(t, run)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, strings.HasPrefix(err.Error(), "drafting:"))
	assert.Equal(t, 0, f.deployer.Calls())
}

func TestRun_RevisionMalformedErrorAborts(t *testing.T) {
	f := newFixture(t,
		[]agentstest.Response{
			agentstest.Reply(badScript),
			agentstest.Fail(&completion.MalformedReplyError{Reason: "no choices"}),
		},
		agentstest.Reply(infraReply),
	)

	_, err := f.engine.Run(context.Background(), task, 4)
	require.Error(t, err)
	assert.True(t, completion.IsMalformed(err))
	assert.Equal(t, 0, f.deployer.Calls())
}

func TestRun_DeploymentErrorAborts(t *testing.T) {
	f := newFixture(t,
		[]agentstest.Response{agentstest.Reply(goodScript)},
		agentstest.Fail(&completion.TransportError{StatusCode: 502}),
	)

	_, err := f.engine.Run(context.Background(), task, 4)
	require.Error(t, err)
	assert.True(t, completion.IsTransport(err))
}

func TestRun_EmptyTask(t *testing.T) {
	f := newFixture(t, nil, agentstest.Reply(infraReply))

	_, err := f.engine.Run(context.Background(), "  ", 4)
	assert.ErrorIs(t, err, workflow.ErrEmptyTask)
	assert.Equal(t, 0, f.drafter.Calls())
}

func TestDeploymentRequest(t *testing.T) {
	assert.Equal(t,
		"Deployment Target: AWS Glue & Azure Databricks\n\nApproved Script:\n```python\nx = 1\n```",
		workflow.DeploymentRequest("x = 1"),
	)
}

func TestRevisionRequest(t *testing.T) {
	result := guardrails.NewQualityGate().Check("to_date StructType")
	assert.Equal(t,
		"Failures detected. Fix these specific issues:\n\n"+
			"[RULE 1] FAIL — 'partitionBy' not found. Add .write.partitionBy('event_date')"+
			"\n\nOutput the complete fixed script in ONE ```python ... ``` block.",
		workflow.RevisionRequest(result),
	)
}
