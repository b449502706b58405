package toolhost

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Message string `json:"message" jsonschema:"required,description=text to echo back"`
}

func TestRegisterAndInvoke(t *testing.T) {
	h := New()
	h.Register("echo", "echoes its input", &echoArgs{}, func(ctx context.Context, username string, args json.RawMessage) (string, error) {
		var a echoArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return "", err
		}
		return username + ":" + a.Message, nil
	})

	out, err := h.Invoke(context.Background(), "alice", "echo", json.RawMessage(`{"message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "alice:hi", out)
}

func TestInvokeUnknownToolFails(t *testing.T) {
	h := New()
	_, err := h.Invoke(context.Background(), "alice", "missing", json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestSchemasAreSortedByName(t *testing.T) {
	h := New()
	h.Register("zeta", "z", &echoArgs{}, nil)
	h.Register("alpha", "a", &echoArgs{}, nil)

	schemas := h.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "alpha", schemas[0].Function.Name)
	assert.Equal(t, "zeta", schemas[1].Function.Name)
}
