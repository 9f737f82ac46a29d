package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/bckup/pkg/client"
	"github.com/udisondev/bckup/pkg/protocol"
)

func TestReportEncoding(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	in := &client.Report{
		UID:           protocol.UID{0xde, 0xad, 0xbe, 0xef},
		ClientName:    "alice",
		ServerAddr:    "127.0.0.1:1234",
		FileName:      "report.txt",
		PlainSize:     100,
		CipherSize:    112,
		Checksum:      0xfedcba98,
		Transmissions: 4,
		CRCMismatches: 4,
		Registered:    true,
		Outcome:       client.OutcomeFailure,
		FinalState:    client.StateBad,
		FailedStep:    client.StateSendCRC,
		Kind:          client.KindIntegrity,
		Error:         "SEND_CRC: integrity mismatch: checksum mismatch after 4 attempts",
		StartedAt:     started,
		Duration:      1500 * time.Millisecond,
	}

	data, err := EncodeReport(in)
	require.NoError(t, err)

	out, err := DecodeReport(data)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeReport_Garbage(t *testing.T) {
	_, err := DecodeReport([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}

func TestSubjectForClient(t *testing.T) {
	uid := protocol.UID{0x01, 0xab}
	require.Equal(t, "bckup.report.01AB0000000000000000000000000000", subjectForClient(uid.String()))
}
