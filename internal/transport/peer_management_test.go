package transport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xrouter-network/internal/xrouter"
)

func TestPeerManagement_SendDeliversToInbound(t *testing.T) {
	serverNode, err := NewNode(Config{ListenAddr: "/ip4/127.0.0.1/tcp/0"})
	require.NoError(t, err)
	defer serverNode.Close()

	clientNode, err := NewNode(Config{ListenAddr: "/ip4/127.0.0.1/tcp/0"})
	require.NoError(t, err)
	defer clientNode.Close()

	received := make(chan []byte, 1)
	serverDir := xrouter.NewPeerDirectory()
	NewPeerManagement(serverNode, serverDir, func(ctx context.Context, from xrouter.PeerID, payload []byte) {
		received <- payload
	})

	clientDir := xrouter.NewPeerDirectory()
	clientPM := NewPeerManagement(clientNode, clientDir, func(context.Context, xrouter.PeerID, []byte) {})

	serverAddr := fmt.Sprintf("%s/p2p/%s", serverNode.host.Addrs()[0].String(), serverNode.host.ID().String())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clientPM.Connect(ctx, serverAddr))

	err = clientPM.Send(ctx, xrouter.PeerID(serverNode.host.ID().String()), []byte("hello"))
	require.NoError(t, err)

	select {
	case payload := <-received:
		require.Equal(t, []byte("hello"), payload)
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the payload")
	}
}
