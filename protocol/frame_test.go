package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lobby-lab/errors"
)

func TestFrame_RoundTrip(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	// Given an arbitrary JSON-serializable command
	sent := map[string]any{
		"command": "create_room",
		"userId":  "p1",
		"gameId":  "connect_four",
	}

	// When it is framed and read back
	req.NoError(Write(&buf, sent))

	var got map[string]any
	req.NoError(Decode(&buf, &got))

	// Then the payload survives unchanged
	req.Equal(sent, got)
	req.Zero(buf.Len())
}

func TestFrame_HeaderIsBigEndianLength(t *testing.T) {
	req := require.New(t)

	frame, err := Encode(map[string]string{"command": "login"})
	req.NoError(err)

	length := binary.BigEndian.Uint32(frame[:4])
	req.Equal(len(frame)-4, int(length))
}

func TestFrame_EncodeRejectsOversizedPayload(t *testing.T) {
	req := require.New(t)

	// Given a payload whose JSON encoding exceeds the length limit
	huge := map[string]string{"data": strings.Repeat("x", LengthLimit)}

	// When encoding it
	_, err := Encode(huge)

	// Then nothing is delivered, not even partially
	req.ErrorIs(err, errors.ErrFrameTooLarge)
}

func TestFrame_ReadRejectsOversizedDeclaredLength(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, LengthLimit+1)
	buf.Write(header)

	_, err := Read(&buf)
	req.ErrorIs(err, errors.ErrFrameTooLarge)
}

func TestFrame_ReadRejectsZeroLength(t *testing.T) {
	req := require.New(t)

	_, err := Read(bytes.NewReader(make([]byte, 4)))
	req.ErrorIs(err, errors.ErrFrameTooLarge)
}

func TestFrame_ReadRejectsInvalidJSON(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	body := []byte("{not json")
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	buf.Write(header)
	buf.Write(body)

	_, err := Read(&buf)
	req.ErrorIs(err, errors.ErrMalformedPayload)
}

func TestFrame_LargestAllowedPayloadRoundTrips(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	// "xxx...x" plus two quotes lands exactly on the limit
	payload := strings.Repeat("x", LengthLimit-2)
	req.NoError(Write(&buf, payload))

	var got string
	req.NoError(Decode(&buf, &got))
	req.Equal(payload, got)
}
