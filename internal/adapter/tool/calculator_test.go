package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculator(t *testing.T) {
	calc := NewCalculatorTool(testLogger())

	tests := []struct {
		name    string
		args    string
		want    string
		wantErr string
	}{
		{"multiply integral", `{"operation":"multiply","a":15,"b":37}`, `555`, ""},
		{"add", `{"operation":"add","a":1.5,"b":2.25}`, `3.75`, ""},
		{"subtract negative", `{"operation":"subtract","a":2,"b":5}`, `-3`, ""},
		{"divide", `{"operation":"divide","a":1,"b":4}`, `0.25`, ""},
		{"divide by zero", `{"operation":"divide","a":1,"b":0}`, "", "division by zero"},
		{"unknown op", `{"operation":"power","a":2,"b":3}`, "", `unknown operation "power"`},
		{"overflow", `{"operation":"multiply","a":1e308,"b":10}`, "", "not a finite number"},
		{"bad json", `{"operation":`, "", "invalid params"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := calc.Execute(context.Background(), json.RawMessage(tt.args))
			require.NoError(t, err)
			if tt.wantErr != "" {
				assert.False(t, res.Success)
				assert.Contains(t, res.Error, tt.wantErr)
				return
			}
			require.True(t, res.Success, res.Error)
			assert.Equal(t, tt.want, string(res.Result))
		})
	}
}

func TestCalculatorContentFedBackToModel(t *testing.T) {
	res, err := NewCalculatorTool(testLogger()).Execute(context.Background(),
		json.RawMessage(`{"operation":"multiply","a":15,"b":37}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"result":555}`, res.Content())
}

func TestCalculatorSchemaRejectsMissingOperand(t *testing.T) {
	r := NewRegistry(testLogger(), nil)
	r.Register(NewCalculatorTool(testLogger()))

	res := r.Execute(context.Background(), "calculator", json.RawMessage(`{"operation":"add","a":1}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid arguments")
}
