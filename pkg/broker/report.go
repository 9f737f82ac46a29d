package broker

import (
	"encoding/hex"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/udisondev/bckup/pkg/client"
	"github.com/udisondev/bckup/pkg/protocol"
)

// EncodeReport кодирует отчёт в google.protobuf.Struct.
// Числовые поля передаются как double, время в RFC 3339.
func EncodeReport(r *client.Report) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"uid":            r.UID.String(),
		"client":         r.ClientName,
		"server":         r.ServerAddr,
		"file":           r.FileName,
		"plain_size":     float64(r.PlainSize),
		"cipher_size":    float64(r.CipherSize),
		"checksum":       float64(r.Checksum),
		"transmissions":  float64(r.Transmissions),
		"crc_mismatches": float64(r.CRCMismatches),
		"reconnected":    r.Reconnected,
		"registered":     r.Registered,
		"outcome":        string(r.Outcome),
		"final_state":    float64(r.FinalState),
		"failed_step":    float64(r.FailedStep),
		"kind":           float64(r.Kind),
		"kind_name":      kindName(r.Kind),
		"error":          r.Error,
		"started_at":     r.StartedAt.UTC().Format(time.RFC3339Nano),
		"duration_ms":    float64(r.Duration.Milliseconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("build report struct: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

// DecodeReport разбирает отчёт, закодированный EncodeReport.
func DecodeReport(data []byte) (*client.Report, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	f := s.GetFields()

	r := &client.Report{
		ClientName:    f["client"].GetStringValue(),
		ServerAddr:    f["server"].GetStringValue(),
		FileName:      f["file"].GetStringValue(),
		PlainSize:     int64(f["plain_size"].GetNumberValue()),
		CipherSize:    int64(f["cipher_size"].GetNumberValue()),
		Checksum:      uint32(f["checksum"].GetNumberValue()),
		Transmissions: int(f["transmissions"].GetNumberValue()),
		CRCMismatches: int(f["crc_mismatches"].GetNumberValue()),
		Reconnected:   f["reconnected"].GetBoolValue(),
		Registered:    f["registered"].GetBoolValue(),
		Outcome:       client.Outcome(f["outcome"].GetStringValue()),
		FinalState:    client.State(f["final_state"].GetNumberValue()),
		FailedStep:    client.State(f["failed_step"].GetNumberValue()),
		Kind:          client.Kind(f["kind"].GetNumberValue()),
		Error:         f["error"].GetStringValue(),
		Duration:      time.Duration(f["duration_ms"].GetNumberValue()) * time.Millisecond,
	}

	uid, err := hex.DecodeString(f["uid"].GetStringValue())
	if err != nil || len(uid) != protocol.UIDSize {
		return nil, fmt.Errorf("report uid %q: bad format", f["uid"].GetStringValue())
	}
	copy(r.UID[:], uid)

	if ts := f["started_at"].GetStringValue(); ts != "" {
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("report start time: %w", err)
		}
	}
	return r, nil
}

func kindName(k client.Kind) string {
	if k == 0 {
		return ""
	}
	return k.String()
}
