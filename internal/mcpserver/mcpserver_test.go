package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimiclab/mimic/pkg/config"
	"github.com/mimiclab/mimic/pkg/detector"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	det, err := detector.New()
	require.NoError(t, err)
	t.Cleanup(det.Close)
	return NewServer("test", det, config.DefaultConfig())
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t)
	require.NotNil(t, s)
	assert.NotNil(t, s.server)
	assert.NotNil(t, s.detector)
}

func TestNewServerDefaults(t *testing.T) {
	det, err := detector.New()
	require.NoError(t, err)
	defer det.Close()

	s := NewServer("", det, nil)
	require.NotNil(t, s)
	assert.NotNil(t, s.config)
}

func TestRegisterThenCheck(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	source := "def add(a, b):\n    return a + b\n"
	res, _, err := s.handleRegisterUnit(ctx, nil, RegisterInput{
		Source:   source,
		Language: "python",
		Name:     "add",
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.IsError)

	radius := 0
	res, _, err = s.handleCheckSimilarity(ctx, nil, CheckInput{
		Source:   "def sum_values(x, y):\n    return x + y\n",
		Language: "python",
		Radius:   &radius,
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.IsError)
	assert.Contains(t, textOf(t, res), "add")
}

func TestCheckSimilarityAdaptive(t *testing.T) {
	s := newTestServer(t)

	res, _, err := s.handleCheckSimilarity(context.Background(), nil, CheckInput{
		Source:   "def f():\n    pass\n",
		Language: "python",
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestRegisterRequiresSource(t *testing.T) {
	s := newTestServer(t)

	res, _, err := s.handleRegisterUnit(context.Background(), nil, RegisterInput{})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, _, err = s.handleCheckSimilarity(context.Background(), nil, CheckInput{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestGetStatsEmptyIndex(t *testing.T) {
	s := newTestServer(t)

	res, _, err := s.handleGetStats(context.Background(), nil, StatsInput{})
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestUnitFromInputDefaults(t *testing.T) {
	s := newTestServer(t)

	u := s.unitFromInput("x = 1", "python", "", "", "bogus-kind")
	assert.Equal(t, "fragment", u.Name)
	assert.Equal(t, "function", string(u.Kind))
	assert.NotEmpty(t, u.ID)
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
