package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/udisondev/bckup/pkg/cksum"
	"github.com/udisondev/bckup/pkg/filecrypt"
	"github.com/udisondev/bckup/pkg/identity"
	"github.com/udisondev/bckup/pkg/protocol"
	"github.com/udisondev/bckup/pkg/session"
)

// prepareFile шифрует файл во временный артефакт и считает контрольную
// сумму открытого текста. Выполняется один раз за запуск: повторные
// передачи отправляют тот же шифротекст.
func (r *runner) prepareFile() error {
	if r.artifact != "" {
		return nil
	}

	path := r.profile.FilePath()
	name := filepath.Base(path)
	if len(name) > protocol.MaxNameLen {
		return fmt.Errorf("file name %q is longer than %d bytes", name, protocol.MaxNameLen)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("source %s is not a regular file", path)
	}
	if uint64(filecrypt.CiphertextSize(info.Size())) > protocol.MaxFileSize {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
	}

	sum, err := cksum.File(path)
	if err != nil {
		return fmt.Errorf("checksum source file: %w", err)
	}

	tmp, err := os.CreateTemp(r.cfg.workDir, "bckup-*.enc")
	if err != nil {
		return fmt.Errorf("create encrypted file: %w", err)
	}
	r.artifact = tmp.Name()
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close encrypted file: %w", err)
	}

	n, err := filecrypt.EncryptFile(r.sess.Key(), path, r.artifact)
	if err != nil {
		return err
	}

	r.plainSize = info.Size()
	r.cipherSize = n
	r.localCRC = sum
	r.sess.SetFileSize(uint32(n))
	r.sess.SetFileName(name)
	r.log.Debug("file encrypted", "file", name, "plain", r.plainSize, "cipher", n, "crc", sum)
	return nil
}

// sendFile отправляет шифротекст и принимает контрольную сумму сервера.
func (r *runner) sendFile(ctx context.Context) (Event, error) {
	if r.sess.Key() == nil {
		return EventFatal, fmt.Errorf("%w: no session key", identity.ErrUnwrap)
	}
	if err := r.prepareFile(); err != nil {
		return EventFatal, localError(StateSendFile, err)
	}
	r.sess.SetRetry(false)

	req := protocol.FileRequest{Size: r.sess.FileSize(), FileName: r.sess.FileName()}

	err := r.exchange(ctx, StateSendFile,
		func(ctx context.Context) error {
			f, err := os.Open(r.artifact)
			if err != nil {
				return localError(StateSendFile, fmt.Errorf("open encrypted file: %w", err))
			}
			defer f.Close()

			r.report.Transmissions++
			r.log.Info("sending file",
				"file", req.FileName,
				"size", req.Size,
				"transmission", r.report.Transmissions,
			)
			return r.sess.SendFile(ctx, req, f)
		},
		func(ctx context.Context) error {
			h, err := r.sess.ReceiveHeader(ctx)
			if err != nil {
				return err
			}
			if err := r.checkResponse(ctx, protocol.CodeSendFile, h); err != nil {
				return err
			}
			payload, err := r.sess.ReceivePayload(ctx)
			if err != nil {
				return err
			}
			resp, err := protocol.ParseCRCResponse(payload)
			if err != nil {
				return err
			}
			if err := r.checkEcho(resp); err != nil {
				return err
			}
			r.serverCRC = resp.Checksum
			return nil
		},
	)
	if err != nil {
		return EventFatal, err
	}
	return EventOK, nil
}

// checkEcho сверяет UID, размер и имя, которые сервер подтвердил в GET_CRC.
func (r *runner) checkEcho(resp *protocol.CRCResponse) error {
	if resp.UID != r.sess.UID() {
		return fmt.Errorf("%w: got %s, want %s", protocol.ErrUIDMismatch, resp.UID, r.sess.UID())
	}
	if resp.Size != r.sess.FileSize() {
		return fmt.Errorf("%w: got %d, want %d", protocol.ErrSizeMismatch, resp.Size, r.sess.FileSize())
	}
	if resp.FileName != r.sess.FileName() {
		return fmt.Errorf("%w: got %q, want %q", protocol.ErrNameMismatch, resp.FileName, r.sess.FileName())
	}
	return nil
}

// sendCRC сравнивает контрольные суммы и отправляет вердикт.
func (r *runner) sendCRC(ctx context.Context) (Event, error) {
	if r.serverCRC == r.localCRC {
		r.log.Info("checksum match", "crc", r.localCRC)
		err := r.exchange(ctx, StateSendCRC, r.sendVerdict(protocol.CodeCRCAck), r.receiveAck)
		if err != nil {
			return EventFatal, err
		}
		return EventOK, nil
	}

	left := r.sess.DecCRC()
	r.log.Warn("checksum mismatch", "local", r.localCRC, "server", r.serverCRC, "attempts_left", left)
	r.sess.SetRetry(left > 0)

	if r.sess.Retry() {
		// на CRC_NACK сервер не отвечает
		if err := r.exchange(ctx, StateSendCRC, r.sendVerdict(protocol.CodeCRCNack), nil); err != nil {
			return EventFatal, err
		}
		return EventCRCMismatch, nil
	}

	if err := r.exchange(ctx, StateSendCRC, r.sendVerdict(protocol.CodeCRCFail), r.receiveAck); err != nil {
		r.log.Warn("no acknowledgement for CRC_FAIL", "error", err)
	}
	return EventCRCExhausted, &Error{
		Kind: KindIntegrity,
		Step: StateSendCRC,
		Err:  fmt.Errorf("%w after %d attempts", ErrChecksum, session.CRCAttempts),
	}
}

func (r *runner) sendVerdict(code protocol.Code) func(context.Context) error {
	return func(ctx context.Context) error {
		return r.sess.Send(ctx, protocol.CRCRequest{Verdict: code, FileName: r.sess.FileName()})
	}
}

// receiveAck принимает финальное подтверждение сервера.
func (r *runner) receiveAck(ctx context.Context) error {
	h, err := r.sess.ReceiveHeader(ctx)
	if err != nil {
		return err
	}
	if err := r.checkResponse(ctx, r.sess.LastSent().Code, h); err != nil {
		return err
	}
	payload, err := r.sess.ReceivePayload(ctx)
	if err != nil {
		return err
	}
	uid, err := protocol.ParseUIDResponse(payload)
	if err != nil {
		return err
	}
	if uid != r.sess.UID() {
		return fmt.Errorf("%w: got %s, want %s", protocol.ErrUIDMismatch, uid, r.sess.UID())
	}
	return nil
}
