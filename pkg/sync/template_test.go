package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderQuery(t *testing.T) {
	query, err := RenderQuery(
		"SELECT cpf, nome FROM {{ .schema }}.pessoal WHERE situacao = :state",
		map[string]any{"schema": "rh"},
	)
	require.NoError(t, err)
	assert.Equal(t, "SELECT cpf, nome FROM rh.pessoal WHERE situacao = :state", query)
}

func TestRenderQuerySprigFunctions(t *testing.T) {
	query, err := RenderQuery(
		"SELECT * FROM {{ .table | upper }}",
		map[string]any{"table": "pessoal"},
	)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM PESSOAL", query)
}

func TestRenderQueryMissingVariable(t *testing.T) {
	_, err := RenderQuery("SELECT * FROM {{ .missing }}", map[string]any{})
	require.Error(t, err)
}

func TestRenderQueryParseError(t *testing.T) {
	_, err := RenderQuery("SELECT * FROM {{ .broken", nil)
	require.Error(t, err)
}

func TestRenderQueryPlainSQL(t *testing.T) {
	query, err := RenderQuery("SELECT 1", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", query)
}
