// Package client реализует клиент резервного копирования: регистрацию,
// обмен ключами, зашифрованную передачу файла и проверку контрольной суммы.
//
// Протокол ведётся конечным автоматом (см. transition). Ошибки чтения
// и несоответствия протокола повторяют пару запрос/ответ до MaxRetries раз,
// несовпадение контрольной суммы повторяет передачу файла до
// session.CRCAttempts раз. Бюджеты независимы.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/udisondev/bckup/pkg/protocol"
	"github.com/udisondev/bckup/pkg/session"
	"github.com/udisondev/bckup/pkg/transport"
)

// reportTimeout ограничивает отправку отчёта после завершения запуска.
const reportTimeout = 5 * time.Second

type runner struct {
	cfg     *runConfig
	log     *slog.Logger
	profile Profile
	sess    *session.Session
	report  *Report

	// подготовленный к отправке файл
	artifact   string
	plainSize  int64
	cipherSize int64
	localCRC   uint32
	serverCRC  uint32

	failure *Error
}

// Run выполняет один запуск резервного копирования файла profile.FilePath().
//
// Report возвращается всегда, в том числе вместе с ошибкой. Ошибка
// имеет тип *Error, категорию можно получить через KindOf.
func Run(ctx context.Context, p Profile, opts ...Option) (*Report, error) {
	cfg := newRunConfig(opts)

	trOpts := append([]transport.Option{transport.WithLogger(cfg.logger)}, cfg.transportOps...)
	r := &runner{
		cfg:     cfg,
		log:     cfg.logger,
		profile: p,
		sess:    session.New(transport.New(p.ServerAddr(), trOpts...)),
		report: &Report{
			ClientName: p.Name(),
			ServerAddr: p.ServerAddr(),
			StartedAt:  time.Now(),
		},
	}
	defer r.cleanup()

	final := r.run(ctx)
	r.finish(ctx, final)

	if r.failure != nil {
		return r.report, r.failure
	}
	return r.report, nil
}

// run прогоняет автомат до терминального состояния.
func (r *runner) run(ctx context.Context) State {
	state := entryState(r.profile)
	r.log.Info("backup started",
		"server", r.profile.ServerAddr(),
		"client", r.profile.Name(),
		"file", r.profile.FilePath(),
		"entry", state,
	)

	for !state.Terminal() {
		ev, err := r.step(ctx, state)
		if err != nil {
			r.failure = wrapError(state, err)
		}

		next, action := transition(state, ev)
		r.log.Debug("transition", "from", state, "event", ev, "to", next)
		r.apply(action)
		state = next
	}

	if state == StateBad && r.failure == nil {
		r.failure = &Error{Kind: KindProtocol, Step: state, Err: errors.New("run aborted")}
	}
	return state
}

func (r *runner) step(ctx context.Context, s State) (Event, error) {
	if err := ctx.Err(); err != nil {
		return EventFatal, err
	}

	switch s {
	case StateReconnect:
		return r.reconnect(ctx)
	case StateRegister:
		return r.register(ctx)
	case StateSendKey:
		return r.sendKey(ctx)
	case StateSendFile:
		return r.sendFile(ctx)
	case StateSendCRC:
		return r.sendCRC(ctx)
	default:
		return EventFatal, fmt.Errorf("no step for state %s", s)
	}
}

func (r *runner) apply(action Action) {
	switch action {
	case ActionResetRegistration:
		r.log.Warn("reconnect rejected, registering again", "uid", r.profile.UID())
		r.profile.SetRegistered(false)
		r.drain()
		if err := r.sess.Close(); err != nil {
			r.log.Debug("close connection", "error", err)
		}
	case ActionRetransmit:
		r.log.Warn("sending file again", "attempts_left", r.sess.CRCLeft())
	case ActionFinish:
		r.log.Info("file verified by server", "file", r.sess.FileName(), "crc", r.localCRC)
	case ActionAbort:
		r.drain()
		if r.failure != nil {
			r.log.Error("backup failed",
				"step", r.failure.Step,
				"kind", r.failure.Kind,
				"error", r.failure.Err,
			)
		}
	}
}

// exchange выполняет пару запрос/ответ с повторами. Перед каждым повтором
// и перед возвратом ошибки непрочитанные байты сервера отбрасываются.
// recv == nil означает запрос без ответа.
func (r *runner) exchange(ctx context.Context, step State, send, recv func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			r.log.Warn("retrying step", "step", step, "attempt", attempt+1, "error", err)
		}

		err = send(ctx)
		if err == nil && recv != nil {
			err = recv(ctx)
		}
		if err == nil {
			return nil
		}

		r.drain()
		if !classify(err).Retryable() {
			return err
		}
	}
	return err
}

// checkResponse проверяет заголовок ответа. При ошибке заявленный
// payload вычитывается, чтобы следующий заголовок читался с начала.
func (r *runner) checkResponse(ctx context.Context, sent protocol.Code, h protocol.ServerHeader) error {
	err := protocol.CheckResponse(sent, h)
	if err == nil {
		return nil
	}
	if h.PayloadSize > 0 && h.PayloadSize <= protocol.MaxResponseSize {
		if ferr := r.sess.Transport().Flush(ctx, int(h.PayloadSize)); ferr != nil {
			r.log.Debug("flush rejected payload", "error", ferr)
		}
	}
	return err
}

func (r *runner) drain() {
	if _, err := r.sess.Drain(); err != nil {
		r.log.Debug("drain socket", "error", err)
	}
}

func (r *runner) finish(ctx context.Context, final State) {
	rep := r.report
	rep.UID = r.profile.UID()
	rep.FileName = r.sess.FileName()
	rep.PlainSize = r.plainSize
	rep.CipherSize = r.cipherSize
	rep.Checksum = r.localCRC
	rep.CRCMismatches = r.sess.CRCMismatches()
	rep.FinalState = final
	rep.Duration = time.Since(rep.StartedAt)

	if r.failure != nil {
		rep.Outcome = OutcomeFailure
		rep.FailedStep = r.failure.Step
		rep.Kind = r.failure.Kind
		rep.Error = r.failure.Error()
	} else {
		rep.Outcome = OutcomeSuccess
		r.log.Info("backup finished",
			"uid", rep.UID,
			"file", rep.FileName,
			"size", rep.PlainSize,
			"transmissions", rep.Transmissions,
			"duration", rep.Duration,
		)
	}

	if r.cfg.reporter == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	if err := r.cfg.reporter.Report(rctx, rep); err != nil {
		r.log.Warn("publish report", "error", err)
	}
}

func (r *runner) cleanup() {
	if err := r.sess.Close(); err != nil {
		r.log.Debug("close connection", "error", err)
	}
	if r.artifact != "" {
		if err := os.Remove(r.artifact); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("remove encrypted file", "path", r.artifact, "error", err)
		}
	}
}
