package source

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executeQueryCollab struct {
	result any
	err    error
	called string
}

func (c *executeQueryCollab) ExecuteQuery(_ context.Context, _ string, _ Params) (any, error) {
	c.called = "ExecuteQuery"
	return c.result, c.err
}

type querierCollab struct {
	result any
	called string
}

func (c *querierCollab) Query(_ context.Context, _ string, _ Params) (any, error) {
	c.called = "Query"
	return c.result, nil
}

// multiCollab exposes both capabilities; ExecuteQuery must win.
type multiCollab struct {
	executeQueryCollab
	querierCollab
}

type fetcherCollab struct{ result any }

func (c *fetcherCollab) FetchAll(_ context.Context, _ string, _ Params) (any, error) {
	return c.result, nil
}

type selectorCollab struct{ result any }

func (c *selectorCollab) Select(_ context.Context, _ string, _ Params) (any, error) {
	return c.result, nil
}

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestNewExecutorCapabilityProbing(t *testing.T) {
	t.Run("binds ExecuteQuery capability", func(t *testing.T) {
		collab := &executeQueryCollab{result: []Row{{1}}}
		exec, err := NewExecutor(newTestLogger(), collab)
		require.NoError(t, err)

		_, err = exec.Execute(context.Background(), "SELECT 1", nil)
		require.NoError(t, err)
		assert.Equal(t, "ExecuteQuery", collab.called)
	})

	t.Run("binds Query capability", func(t *testing.T) {
		collab := &querierCollab{result: []Row{{1}}}
		exec, err := NewExecutor(newTestLogger(), collab)
		require.NoError(t, err)

		_, err = exec.Execute(context.Background(), "SELECT 1", nil)
		require.NoError(t, err)
		assert.Equal(t, "Query", collab.called)
	})

	t.Run("binds FetchAll capability", func(t *testing.T) {
		_, err := NewExecutor(newTestLogger(), &fetcherCollab{})
		require.NoError(t, err)
	})

	t.Run("binds Select capability", func(t *testing.T) {
		_, err := NewExecutor(newTestLogger(), &selectorCollab{})
		require.NoError(t, err)
	})

	t.Run("prefers ExecuteQuery over Query", func(t *testing.T) {
		collab := &multiCollab{}
		exec, err := NewExecutor(newTestLogger(), collab)
		require.NoError(t, err)

		_, err = exec.Execute(context.Background(), "SELECT 1", nil)
		require.NoError(t, err)
		assert.Equal(t, "ExecuteQuery", collab.executeQueryCollab.called)
		assert.Empty(t, collab.querierCollab.called)
	})

	t.Run("rejects collaborator without capability", func(t *testing.T) {
		_, err := NewExecutor(newTestLogger(), struct{}{})
		require.ErrorIs(t, err, ErrNoQueryCapability)
	})
}

func TestExecuteWrapsCollaboratorErrors(t *testing.T) {
	cause := errors.New("ORA-00942: table or view does not exist")
	collab := &executeQueryCollab{err: cause}

	exec, err := NewExecutor(newTestLogger(), collab)
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), "SELECT * FROM missing", nil)
	require.Error(t, err)

	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ORA-00942")
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected []Row
	}{
		{
			name:     "rows pass through",
			input:    []Row{{1, "A"}, {2, "B"}},
			expected: []Row{{1, "A"}, {2, "B"}},
		},
		{
			name:     "slices of slices convert element-wise",
			input:    [][]any{{1, "A"}, {2, "B"}},
			expected: []Row{{1, "A"}, {2, "B"}},
		},
		{
			name:     "maps convert to values in sorted key order",
			input:    []map[string]any{{"name": "Ana", "cpf": "123", "state": "ATIVO"}},
			expected: []Row{{"123", "Ana", "ATIVO"}},
		},
		{
			name:     "single row wraps into one-element slice",
			input:    Row{1, "A"},
			expected: []Row{{1, "A"}},
		},
		{
			name:     "nil normalizes to empty",
			input:    nil,
			expected: []Row{},
		},
		{
			name:     "empty slice stays empty",
			input:    []Row{},
			expected: []Row{},
		},
		{
			name:     "unrecognized shape normalizes to empty",
			input:    42,
			expected: []Row{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalize(tt.input))
		})
	}
}

func TestExecutorIdentity(t *testing.T) {
	t.Run("empty for anonymous collaborator", func(t *testing.T) {
		exec, err := NewExecutor(newTestLogger(), &querierCollab{})
		require.NoError(t, err)
		assert.Empty(t, exec.Identity())
	})

	t.Run("delegates to identifying collaborator", func(t *testing.T) {
		adapter, err := NewDBAdapter(&Config{Driver: "sqlite3", DSN: ":memory:"})
		require.NoError(t, err)
		defer adapter.Close()

		exec, err := NewExecutor(newTestLogger(), adapter)
		require.NoError(t, err)
		assert.Equal(t, "driver=sqlite3|dsn=:memory:", exec.Identity())
	})
}
