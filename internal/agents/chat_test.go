package agents

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dyike/CortexReport/config"
	"github.com/dyike/CortexReport/consts"
)

// fakeChatModel answers with a fixed reply and records what it was sent.
type fakeChatModel struct {
	mu    sync.Mutex
	reply string
	err   error
	seen  [][]*schema.Message
}

func (m *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.seen = append(m.seen, input)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func TestLoadPersonas(t *testing.T) {
	personas, err := LoadPersonas()
	require.NoError(t, err)
	require.Len(t, personas, 4)

	lead := personas[consts.TeamLead]
	assert.Equal(t, consts.TeamLead, lead.Key)
	assert.Len(t, lead.Instructions, 3)
	sys := lead.SystemPrompt()
	assert.Contains(t, sys, "Lead trading analyst")
	assert.Contains(t, sys, "- Provide clear buy, sell, or hold recommendations with price targets.")
}

func TestChatRoleRun(t *testing.T) {
	personas, err := LoadPersonas()
	require.NoError(t, err)
	cm := &fakeChatModel{reply: "AAPL looks strong"}

	role, err := NewChatRole(context.Background(), personas[consts.MarketAnalyst], cm)
	require.NoError(t, err)
	assert.Equal(t, consts.MarketAnalyst, role.Name())

	prompt := "Compare these stock performances:\nAAPL: +5.00%\nraw {\"k\": 1}"
	out, err := role.Run(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "AAPL looks strong", out)

	require.Len(t, cm.seen, 1)
	msgs := cm.seen[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "evaluates stock performance")
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, prompt, msgs[1].Content)
}

func TestInvokeWrapsRoleErrors(t *testing.T) {
	personas, err := LoadPersonas()
	require.NoError(t, err)
	boom := errors.New("quota exceeded")
	role, err := NewChatRole(context.Background(), personas[consts.TeamLead], &fakeChatModel{err: boom})
	require.NoError(t, err)

	_, err = Invoke(context.Background(), consts.StageSynthesis, role, "hi")
	var roleErr *RoleError
	require.ErrorAs(t, err, &roleErr)
	assert.Equal(t, consts.TeamLead, roleErr.Role)
	assert.Equal(t, consts.StageSynthesis, roleErr.Stage)
	assert.ErrorIs(t, err, boom)
}

func TestNewRoles(t *testing.T) {
	roles, err := NewRoles(context.Background(), &fakeChatModel{reply: "ok"})
	require.NoError(t, err)
	require.NoError(t, roles.Validate())
	assert.Equal(t, consts.StockStrategist, roles.Strategist.Name())

	assert.Error(t, Roles{}.Validate())
}

func TestNewChatModelRejectsBadConfig(t *testing.T) {
	cfg := config.Defaults()
	_, err := NewChatModel(context.Background(), cfg)
	assert.ErrorContains(t, err, "no API key")

	cfg.LLMProvider = "gemini"
	cfg.DeepSeekAPIKey = "k"
	_, err = NewChatModel(context.Background(), cfg)
	assert.Error(t, err)
}

func TestLogHandlerLogsModelCalls(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	personas, err := LoadPersonas()
	require.NoError(t, err)

	role, err := NewChatRole(context.Background(), personas[consts.CompanyResearcher],
		&fakeChatModel{reply: "12345"}, NewLogHandler(zap.New(core)))
	require.NoError(t, err)
	_, err = role.Run(context.Background(), "Provide an analysis")
	require.NoError(t, err)

	finished := logs.FilterMessage("role finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, int64(5), finished[0].ContextMap()["chars"])
}

func TestRoleFunc(t *testing.T) {
	r := NewRoleFunc("echo", func(_ context.Context, p string) (string, error) { return p, nil })
	out, err := Invoke(context.Background(), consts.StageMarket, r, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}
