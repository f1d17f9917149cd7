// Package integration exercises the out-of-band pairing handshake over the
// wire: code issuance, one-shot consumption, and invalidation.
package integration

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cleech/gbplaybook-webrtc-server/internal/server"
	"github.com/cleech/gbplaybook-webrtc-server/test/testhelpers"
)

func beginHandshake(t *testing.T, conn *websocket.Conn, peerID string) int {
	t.Helper()

	testhelpers.WriteFrame(t, conn, server.Message{Type: server.TypeHandshakeBegin})
	response := testhelpers.ReadFrame(t, conn)

	if response.Type != server.TypeHandshakeResponse {
		t.Fatalf("Expected handshake-response, got %q", response.Type)
	}
	if response.YourID != peerID {
		t.Errorf("Expected yourId %q, got %q", peerID, response.YourID)
	}
	if response.Code == nil || *response.Code < 0 || *response.Code >= 9999 {
		t.Fatalf("Code outside [0, 9999): %v", response.Code)
	}
	return *response.Code
}

func TestPairingHandshakeCompletes(t *testing.T) {
	_, wsURL := testhelpers.StartSignalingServer(t)

	alice, _ := testhelpers.Dial(t, wsURL, "")
	aliceID := testhelpers.ReadInit(t, alice)
	bob, _ := testhelpers.Dial(t, wsURL, "")
	bobID := testhelpers.ReadInit(t, bob)

	code := beginHandshake(t, alice, aliceID)

	testhelpers.WriteFrame(t, bob, server.Message{Type: server.TypeHandshakeJoin, Code: &code})

	aliceFrame := testhelpers.ReadFrame(t, alice)
	if aliceFrame.Type != server.TypeHandshakeComplete ||
		aliceFrame.YourID != aliceID || aliceFrame.OtherID != bobID {
		t.Errorf("Unexpected completion for issuer: %+v", aliceFrame)
	}

	bobFrame := testhelpers.ReadFrame(t, bob)
	if bobFrame.Type != server.TypeHandshakeComplete ||
		bobFrame.YourID != bobID || bobFrame.OtherID != aliceID {
		t.Errorf("Unexpected completion for joiner: %+v", bobFrame)
	}
}

func TestPairingCodeIsOneShot(t *testing.T) {
	_, wsURL := testhelpers.StartSignalingServer(t)

	alice, _ := testhelpers.Dial(t, wsURL, "")
	aliceID := testhelpers.ReadInit(t, alice)
	bob, _ := testhelpers.Dial(t, wsURL, "")
	testhelpers.ReadInit(t, bob)
	carol, _ := testhelpers.Dial(t, wsURL, "")
	testhelpers.ReadInit(t, carol)

	code := beginHandshake(t, alice, aliceID)

	testhelpers.WriteFrame(t, bob, server.Message{Type: server.TypeHandshakeJoin, Code: &code})
	testhelpers.ReadFrame(t, alice)
	testhelpers.ReadFrame(t, bob)

	// The consumed code is gone; a replay finds nothing and nobody hears
	// anything.
	testhelpers.WriteFrame(t, carol, server.Message{Type: server.TypeHandshakeJoin, Code: &code})
	testhelpers.ExpectNoFrame(t, carol, 200*time.Millisecond)
	testhelpers.ExpectNoFrame(t, alice, 200*time.Millisecond)
	testhelpers.ExpectNoFrame(t, bob, 200*time.Millisecond)
}

func TestPairingUnknownCodeIsSilent(t *testing.T) {
	_, wsURL := testhelpers.StartSignalingServer(t)

	conn, _ := testhelpers.Dial(t, wsURL, "")
	testhelpers.ReadInit(t, conn)

	code := 4242
	testhelpers.WriteFrame(t, conn, server.Message{Type: server.TypeHandshakeJoin, Code: &code})
	testhelpers.ExpectNoFrame(t, conn, 200*time.Millisecond)
}

func TestPairingCodeInvalidatedByOwnerDisconnect(t *testing.T) {
	_, wsURL := testhelpers.StartSignalingServer(t)

	alice, _ := testhelpers.Dial(t, wsURL, "")
	aliceID := testhelpers.ReadInit(t, alice)
	bob, _ := testhelpers.Dial(t, wsURL, "")
	testhelpers.ReadInit(t, bob)

	code := beginHandshake(t, alice, aliceID)

	if err := alice.Close(); err != nil {
		t.Fatalf("Failed to close issuer connection: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	testhelpers.WriteFrame(t, bob, server.Message{Type: server.TypeHandshakeJoin, Code: &code})
	testhelpers.ExpectNoFrame(t, bob, 200*time.Millisecond)
}

func TestPairingReissueSupersedesOldCode(t *testing.T) {
	_, wsURL := testhelpers.StartSignalingServer(t)

	alice, _ := testhelpers.Dial(t, wsURL, "")
	aliceID := testhelpers.ReadInit(t, alice)
	bob, _ := testhelpers.Dial(t, wsURL, "")
	bobID := testhelpers.ReadInit(t, bob)

	first := beginHandshake(t, alice, aliceID)
	second := beginHandshake(t, alice, aliceID)

	if first != second {
		// The superseded code must be dead.
		testhelpers.WriteFrame(t, bob, server.Message{Type: server.TypeHandshakeJoin, Code: &first})
		testhelpers.ExpectNoFrame(t, bob, 200*time.Millisecond)
		testhelpers.ExpectNoFrame(t, alice, 200*time.Millisecond)
	}

	testhelpers.WriteFrame(t, bob, server.Message{Type: server.TypeHandshakeJoin, Code: &second})
	frame := testhelpers.ReadFrame(t, bob)
	if frame.Type != server.TypeHandshakeComplete || frame.OtherID != aliceID {
		t.Errorf("Current code must remain joinable: %+v", frame)
	}
	issuerFrame := testhelpers.ReadFrame(t, alice)
	if issuerFrame.OtherID != bobID {
		t.Errorf("Issuer must learn the joiner's id, got %+v", issuerFrame)
	}
}
