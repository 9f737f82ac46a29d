// Package transport реализует TCP соединение с сервером резервного копирования.
//
// Чтение ведётся с ограниченным терпением: несколько опросов с паузой между
// ними, после чего чтение прерывается. Ноль пришедших байт означает таймаут,
// частично пришедшее сообщение означает ошибку кадрирования.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/udisondev/bckup/pkg/protocol"
	"golang.org/x/time/rate"
)

var (
	// ErrTimeout за отведённое терпение не пришло ни одного байта.
	ErrTimeout = errors.New("read timeout")

	// ErrUnreachable сервер недоступен или разорвал соединение.
	ErrUnreachable = errors.New("server unreachable")

	// ErrClosed соединение не открыто или уже закрыто.
	ErrClosed = errors.New("transport closed")
)

// Transport одно TCP соединение с сервером. Не безопасен для
// конкурентного использования.
type Transport struct {
	addr string
	cfg  config

	conn net.Conn
	r    *bufio.Reader

	limiter *rate.Limiter
}

// New создаёт транспорт для адреса addr. Соединение открывает Connect.
func New(addr string, opts ...Option) *Transport {
	cfg := config{
		dialTimeout:  DefaultDialTimeout,
		writeTimeout: DefaultWriteTimeout,
		pollInterval: DefaultPollInterval,
		patience:     DefaultPatience,
		drainWait:    DefaultDrainWait,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Transport{addr: addr, cfg: cfg}
	if cfg.uploadLimit > 0 {
		// burst не меньше куска, иначе WaitN никогда не пропустит кусок
		t.limiter = rate.NewLimiter(rate.Limit(cfg.uploadLimit), max(cfg.uploadLimit, protocol.MaxChunkSize))
	}
	return t
}

// Addr возвращает адрес сервера.
func (t *Transport) Addr() string {
	return t.addr
}

// Connected сообщает, открыто ли соединение.
func (t *Transport) Connected() bool {
	return t.conn != nil
}

// Connect открывает соединение. Открытое ранее соединение закрывается.
// Ошибка подключения всегда ErrUnreachable.
func (t *Transport) Connect(ctx context.Context) error {
	if t.conn != nil {
		_ = t.Close()
	}

	dialer := &net.Dialer{Timeout: t.cfg.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp4", t.addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrUnreachable, t.addr, err)
	}

	t.conn = conn
	t.r = bufio.NewReaderSize(conn, protocol.MaxChunkSize)
	t.cfg.logger.Debug("connected", "addr", t.addr)
	return nil
}

// Close закрывает соединение. Повторный вызов ничего не делает.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn, t.r = nil, nil
	if err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

// ReadHeader читает заголовок ответа сервера.
func (t *Transport) ReadHeader(ctx context.Context) (protocol.ServerHeader, error) {
	var buf [protocol.ServerHeaderSize]byte
	var h protocol.ServerHeader
	if err := t.readFull(ctx, buf[:]); err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	err := h.UnmarshalBinary(buf[:])
	return h, err
}

// ReadPayload читает ровно size байт payload.
func (t *Transport) ReadPayload(ctx context.Context, size uint32) ([]byte, error) {
	if int(size) > protocol.MaxResponseSize {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds %d", protocol.ErrFraming, size, protocol.MaxResponseSize)
	}
	buf := make([]byte, size)
	if err := t.readFull(ctx, buf); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return buf, nil
}

// Flush читает и отбрасывает ровно n байт с тем же терпением, что и чтение.
func (t *Transport) Flush(ctx context.Context, n int) error {
	var scratch [protocol.MaxChunkSize]byte
	for n > 0 {
		chunk := min(n, len(scratch))
		if err := t.readFull(ctx, scratch[:chunk]); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		n -= chunk
	}
	return nil
}

// Drain отбрасывает всё, что сервер уже успел прислать.
// Возвращает количество отброшенных байт.
func (t *Transport) Drain() (int, error) {
	if t.conn == nil {
		return 0, nil
	}

	drained, _ := t.r.Discard(t.r.Buffered())

	var scratch [protocol.MaxChunkSize]byte
	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.cfg.drainWait)); err != nil {
			return drained, fmt.Errorf("set read deadline: %w", err)
		}
		n, err := t.r.Read(scratch[:])
		drained += n
		if err != nil {
			_ = t.conn.SetReadDeadline(time.Time{})
			if drained > 0 {
				t.cfg.logger.Debug("drained socket", "bytes", drained)
			}
			if isTimeout(err) {
				return drained, nil
			}
			return drained, classify(err)
		}
	}
}

// Write записывает буферы одной векторной записью.
func (t *Transport) Write(ctx context.Context, bufs ...[]byte) error {
	if t.conn == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.setWriteDeadline(); err != nil {
		return err
	}

	nb := net.Buffers(bufs)
	if _, err := nb.WriteTo(t.conn); err != nil {
		return fmt.Errorf("write: %w", classify(err))
	}
	return nil
}

// WriteFrom передаёт ровно n байт из r кусками по MaxChunkSize.
// При заданном лимите скорость отправки ограничивается.
func (t *Transport) WriteFrom(ctx context.Context, r io.Reader, n int64) (int64, error) {
	if t.conn == nil {
		return 0, ErrClosed
	}

	buf := make([]byte, protocol.MaxChunkSize)
	var sent int64
	for sent < n {
		chunk := int(min(n-sent, int64(len(buf))))
		if _, err := io.ReadFull(r, buf[:chunk]); err != nil {
			return sent, fmt.Errorf("read chunk: %w", err)
		}

		if t.limiter != nil {
			if err := t.limiter.WaitN(ctx, chunk); err != nil {
				return sent, fmt.Errorf("upload limit: %w", err)
			}
		} else if err := ctx.Err(); err != nil {
			return sent, err
		}

		if err := t.setWriteDeadline(); err != nil {
			return sent, err
		}
		m, err := t.conn.Write(buf[:chunk])
		sent += int64(m)
		if err != nil {
			return sent, fmt.Errorf("write chunk: %w", classify(err))
		}
	}
	return sent, nil
}

func (t *Transport) setWriteDeadline() error {
	if t.cfg.writeTimeout <= 0 {
		return nil
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return nil
}

// readFull заполняет buf, опрашивая сокет не более patience раз.
func (t *Transport) readFull(ctx context.Context, buf []byte) error {
	if t.conn == nil {
		return ErrClosed
	}
	defer func() {
		if t.conn != nil {
			_ = t.conn.SetReadDeadline(time.Time{})
		}
	}()

	read := 0
	for poll := 0; poll < t.cfg.patience; poll++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.conn.SetReadDeadline(time.Now().Add(t.cfg.pollInterval)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		n, err := io.ReadFull(t.r, buf[read:])
		read += n
		if err == nil {
			return nil
		}
		if !isTimeout(err) {
			return classify(err)
		}
	}

	if read == 0 {
		return fmt.Errorf("%w: no data after %d polls", ErrTimeout, t.cfg.patience)
	}
	return fmt.Errorf("%w: got %d of %d bytes", protocol.ErrFraming, read, len(buf))
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// classify приводит ошибку сокета к ошибкам пакета.
// Разрыв соединения сервером считается недоступностью сервера.
func classify(err error) error {
	switch {
	case isTimeout(err):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	default:
		return err
	}
}
