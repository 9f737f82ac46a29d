package client

import (
	"time"

	"github.com/udisondev/bckup/pkg/protocol"
)

// Outcome итог запуска.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Report сводка одного запуска.
type Report struct {
	UID        protocol.UID
	ClientName string
	ServerAddr string
	FileName   string

	// PlainSize размер исходного файла, CipherSize размер переданного шифротекста.
	PlainSize  int64
	CipherSize int64
	Checksum   uint32

	// Transmissions сколько раз файл отправлялся серверу.
	Transmissions int
	CRCMismatches int
	Reconnected   bool
	Registered    bool

	Outcome    Outcome
	FinalState State
	FailedStep State
	Kind       Kind
	Error      string

	StartedAt time.Time
	Duration  time.Duration
}

// Success сообщает об успешном завершении.
func (r *Report) Success() bool {
	return r.Outcome == OutcomeSuccess
}
