package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulepack/internal/compiler"
)

func TestValidate_Valid(t *testing.T) {
	out, err := execute(t, NewValidateCommand(testOptions(t, "text")), tradingDir)
	require.NoError(t, err)
	assert.Equal(t, "✓ Package org.acme.trading is valid\n", out)
}

func TestValidate_ValidJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(testOptions(t, "json")), tradingDir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "org.acme.trading", resp.Data.Package)
}

func TestValidate_InvalidReportsEveryError(t *testing.T) {
	out, err := execute(t, NewValidateCommand(testOptions(t, "text")), invalidDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✗ Package org.acme.invalid is invalid")
	assert.Contains(t, out, `E102 rule.orphan.then: rule "orphan" has an empty consequence`)
	assert.Contains(t, out, "E112 ruleflow.p1.connections: cycle in ruleflow p1: a → b → a")
}

func TestValidate_InvalidJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(testOptions(t, "json")), invalidDir)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 2)
	assert.Equal(t, compiler.ErrRuleNoConsequence, resp.Error.Code)
}

func TestValidate_LoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		code   string
	}{
		{"missing directory", "testdata/nope", ErrCodeNotFound},
		{"no cue files", "testdata/empty", ErrCodeNoFiles},
		{"not a cue file", "testdata/empty/README", ErrCodeNoFiles},
		{"float salience", brokenDir, compiler.ErrFloatTypeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewValidateCommand(testOptions(t, "json")), tt.source)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestValidate_SingleFile(t *testing.T) {
	out, err := execute(t, NewValidateCommand(testOptions(t, "text")), "testdata/invalid/package.cue")
	require.Error(t, err)
	assert.Contains(t, out, "org.acme.invalid")
}

func TestMapFieldToErrorCode(t *testing.T) {
	assert.Equal(t, compiler.ErrInvalidPackageName, MapFieldToErrorCode("name"))
	assert.Equal(t, compiler.ErrFloatTypeForbidden, MapFieldToErrorCode("rule.r.salience"))
	assert.Equal(t, compiler.ErrInvalidFieldType, MapFieldToErrorCode("template.Order.fields"))
	assert.Equal(t, ErrCodeGeneric, MapFieldToErrorCode("something"))
}
