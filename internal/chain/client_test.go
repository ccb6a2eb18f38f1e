package chain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/dcipctl/internal/chain"
	"github.com/Bidon15/dcipctl/internal/testchain"
)

func TestDial_Unreachable(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{name: "empty endpoint", endpoint: ""},
		{name: "nothing listening", endpoint: "http://127.0.0.1:1"},
		{name: "bad scheme", endpoint: "gopher://127.0.0.1:8545"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := chain.Dial(context.Background(), tt.endpoint, 500*time.Millisecond)
			require.ErrorIs(t, err, chain.ErrUnreachable)
			assert.Nil(t, conn)
		})
	}
}

func TestNewConnection_Simulated(t *testing.T) {
	c := testchain.NewManual(t)

	conn, err := chain.NewConnection(context.Background(), c.Client)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, c.ChainID, conn.ChainID)
	assert.NotNil(t, conn.Raw)
}

func TestNewConnection_ChainIDFails(t *testing.T) {
	m := new(testchain.MockClient)
	m.On("ChainID", mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := chain.NewConnection(context.Background(), m)
	require.ErrorIs(t, err, chain.ErrUnreachable)
}

func TestWaitForBlock(t *testing.T) {
	c := testchain.New(t)
	ctx := context.Background()

	start, err := c.Client.BlockNumber(ctx)
	require.NoError(t, err)

	head, err := chain.WaitForBlock(ctx, c.Client, start+3, 5*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, head, start+3)
}

func TestWaitForBlock_ContextCancelled(t *testing.T) {
	c := testchain.NewManual(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := chain.WaitForBlock(ctx, c.Client, 1000, 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
