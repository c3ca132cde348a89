package agents_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadworks/squad/internal/agents"
	"github.com/squadworks/squad/internal/agents/agentstest"
	"github.com/squadworks/squad/internal/completion"
	"github.com/squadworks/squad/internal/metrics"
	"github.com/squadworks/squad/pkg/models"
)

// ─── Catalog ─────────────────────────────────────────────────

func TestDefaultCatalog(t *testing.T) {
	cat, err := agents.DefaultCatalog()
	require.NoError(t, err)
	require.Len(t, cat.Profiles(), 2)

	drafter, err := cat.ForRole(models.AgentRoleDrafting, "qwen/qwen3-32b")
	require.NoError(t, err)
	assert.Equal(t, "Data_Architect", drafter.Name)
	assert.Equal(t, 1200, drafter.MaxTokens)
	assert.Equal(t, "qwen/qwen3-32b", drafter.Model)
	assert.Contains(t, drafter.SystemMessage, "partitionBy")

	deployer, err := cat.ForRole(models.AgentRoleDeployment, "qwen/qwen3-32b")
	require.NoError(t, err)
	assert.Equal(t, "Cloud_Architect", deployer.Name)
	assert.Contains(t, deployer.SystemMessage, "AWS Glue")
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":        "  ",
		"bad yaml":     "agents: [",
		"missing role": "agents:\n  - name: A\n    role: drafting\n    system_message: x\n",
		"invalid role": "agents:\n  - name: A\n    role: reviewer\n    system_message: x\n",
		"no system":    "agents:\n  - name: A\n    role: drafting\n  - name: B\n    role: deployment\n    system_message: y\n",
		"dup name":     "agents:\n  - name: A\n    role: drafting\n    system_message: x\n  - name: A\n    role: deployment\n    system_message: y\n",
		"dup role":     "agents:\n  - name: A\n    role: drafting\n    system_message: x\n  - name: B\n    role: drafting\n    system_message: y\n",
		"neg tokens":   "agents:\n  - name: A\n    role: drafting\n    system_message: x\n    max_tokens: -1\n  - name: B\n    role: deployment\n    system_message: y\n",
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := agents.ParseCatalog([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	payload := "agents:\n" +
		"  - name: Drafter\n    role: drafting\n    system_message: draft\n    model: custom\n" +
		"  - name: Deployer\n    role: deployment\n    system_message: deploy\n"
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	cat, err := agents.LoadCatalog(path)
	require.NoError(t, err)

	drafter, err := cat.ForRole(models.AgentRoleDrafting, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "custom", drafter.Model)
	assert.Equal(t, models.DefaultMaxTokens, drafter.EffectiveMaxTokens())

	deployer, err := cat.ForRole(models.AgentRoleDeployment, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", deployer.Model)

	_, err = agents.LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// ─── Thread ──────────────────────────────────────────────────

func testProfile() models.AgentProfile {
	return models.AgentProfile{
		Name:          "Data_Architect",
		Role:          models.AgentRoleDrafting,
		SystemMessage: "be a data engineer",
		Model:         "m",
		MaxTokens:     1200,
	}
}

func TestThread_SendAppendsExchange(t *testing.T) {
	completer := agentstest.NewScriptedCompleter(agentstest.Reply("draft"))
	agent := agents.New(testProfile(), completer, nil)
	thread := agent.NewThread("Admin", agents.DefaultWindow)

	exchange, err := thread.Send(context.Background(), "write a script")
	require.NoError(t, err)

	want := models.ChatHistory{
		{Role: models.RoleUser, Name: "Admin", Content: "write a script"},
		{Role: models.RoleAssistant, Name: "Data_Architect", Content: "draft"},
	}
	assert.Equal(t, want, exchange)
	assert.Equal(t, want, thread.History())

	req := completer.Requests()[0]
	assert.Equal(t, "Data_Architect", req.Agent)
	assert.Equal(t, "m", req.Model)
	assert.Equal(t, 1200, req.MaxTokens)
	assert.Equal(t, float64(0), req.Temperature)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, models.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "be a data engineer", req.Messages[0].Content)
}

func TestThread_RequestKeepsSystemAndTrailingWindow(t *testing.T) {
	var responses []agentstest.Response
	for i := 0; i < 4; i++ {
		responses = append(responses, agentstest.Reply(fmt.Sprintf("reply %d", i)))
	}
	completer := agentstest.NewScriptedCompleter(responses...)
	thread := agents.New(testProfile(), completer, nil).NewThread("Admin", agents.DefaultWindow)

	for i := 0; i < 4; i++ {
		_, err := thread.Send(context.Background(), fmt.Sprintf("ask %d", i))
		require.NoError(t, err)
	}

	require.Len(t, thread.History(), 8)

	last := completer.Requests()[3]
	require.Len(t, last.Messages, agents.DefaultWindow)
	assert.Equal(t, models.RoleSystem, last.Messages[0].Role)
	assert.Equal(t, []string{"reply 1", "ask 2", "reply 2", "ask 3"}, contents(last.Messages[1:]))
}

func TestThread_SendFailureLeavesThreadUnchanged(t *testing.T) {
	boom := &completion.TransportError{StatusCode: 503, Body: "down"}
	m := metrics.New()
	completer := agentstest.NewScriptedCompleter(agentstest.Fail(boom))
	thread := agents.New(testProfile(), completer, m).NewThread("Admin", agents.DefaultWindow)

	_, err := thread.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, completion.IsTransport(err))
	assert.Empty(t, thread.History())
}

func TestNewThread_WindowBounds(t *testing.T) {
	completer := agentstest.NewScriptedCompleter()
	agent := agents.New(testProfile(), completer, nil)

	for _, w := range []int{-1, 0, 1, 6, 100} {
		req := agent.NewThread("Admin", w).Request("x")
		assert.LessOrEqual(t, len(req.Messages), agents.DefaultWindow)
	}

	req := agent.NewThread("Admin", 2).Request("only")
	assert.Equal(t, []string{"be a data engineer", "only"}, contents(req.Messages))
}

func contents(msgs models.ChatHistory) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
