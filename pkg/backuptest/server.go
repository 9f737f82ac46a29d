package backuptest

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/udisondev/bckup/pkg/cksum"
	"github.com/udisondev/bckup/pkg/filecrypt"
	"github.com/udisondev/bckup/pkg/identity"
	"github.com/udisondev/bckup/pkg/protocol"
)

// maxRequestPayload ограничивает payload запроса без тела файла.
const maxRequestPayload = protocol.NameSize + protocol.KeySize

// Server сервер резервного копирования в процессе теста.
// Повторяет поведение настоящего сервера, включая его особенности:
// на RECONNECT_BAD заголовок заявляет пустой payload, но следом идут
// 16 байт UID.
type Server struct {
	// Addr адрес сервера (host:port).
	Addr string

	lis  net.Listener
	opts *options
	log  *slog.Logger

	mu       sync.Mutex
	clients  map[protocol.UID]*clientRecord
	names    map[string]protocol.UID
	requests []protocol.Code
	files    map[string][]byte
	conns    int

	done chan struct{}
	wg   sync.WaitGroup
}

type clientRecord struct {
	name      string
	publicKey []byte
	aesKey    []byte
	verified  bool
}

// NewServer запускает сервер на случайном порту 127.0.0.1.
func NewServer(opts ...Option) (*Server, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	lis, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("create listener: %w", err)
	}

	s := &Server{
		Addr:    lis.Addr().String(),
		lis:     lis,
		opts:    o,
		log:     o.logger,
		clients: make(map[protocol.UID]*clientRecord),
		names:   make(map[string]protocol.UID),
		files:   make(map[string][]byte),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Close останавливает сервер и ждёт завершения обработчиков.
func (s *Server) Close() error {
	err := s.lis.Close()
	close(s.done)
	s.wg.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}

// AddClient регистрирует клиента заранее, как будто он уже проходил
// регистрацию и обмен ключами.
func (s *Server) AddClient(name string, keys *identity.KeyPair) protocol.UID {
	var uid protocol.UID
	_, _ = rand.Read(uid[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[uid] = &clientRecord{name: name, publicKey: keys.PublicKeyDER()}
	s.names[name] = uid
	return uid
}

// Requests возвращает коды полученных запросов по порядку.
func (s *Server) Requests() []protocol.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Code(nil), s.requests...)
}

// Count возвращает количество полученных запросов с кодом code.
func (s *Server) Count(code protocol.Code) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.requests {
		if c == code {
			n++
		}
	}
	return n
}

// Connections возвращает количество принятых соединений.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// File возвращает расшифрованное содержимое последнего принятого файла.
func (s *Server) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	return data, ok
}

// Verified сообщает, подтвердил ли клиент uid контрольную сумму.
func (s *Server) Verified(uid protocol.UID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[uid]
	return ok && c.verified
}

// Registered сообщает, знает ли сервер клиента uid.
func (s *Server) Registered(uid protocol.UID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clients[uid]
	return ok
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.lis.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Error("accept connection", "error", err)
			}
			return
		}

		s.mu.Lock()
		s.conns++
		s.mu.Unlock()

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(c)
		}(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Debug("close connection", "error", err)
		}
	}()

	// соединение закрывается вместе с сервером
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-stop:
		case <-s.done:
			_ = conn.Close()
		}
	}()

	r := bufio.NewReader(conn)
	for {
		h, err := protocol.DecodeClientHeader(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("read request header", "error", err)
			}
			return
		}
		if err := s.handleRequest(conn, r, h); err != nil {
			s.log.Debug("handle request", "code", h.Code, "error", err)
			return
		}
	}
}

func (s *Server) handleRequest(w io.Writer, r io.Reader, h protocol.ClientHeader) error {
	if h.Version != protocol.Version {
		return s.reply(w, protocol.CodeGenericError, nil)
	}

	fixed := int(h.PayloadSize)
	if h.Code == protocol.CodeSendFile {
		fixed = protocol.SizeSize + protocol.NameSize
	}
	if fixed > maxRequestPayload || uint32(fixed) > h.PayloadSize {
		return fmt.Errorf("request %s: bad payload size %d", h.Code, h.PayloadSize)
	}
	payload := make([]byte, fixed)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	// тело файла вычитывается всегда, чтобы поток остался согласованным
	var plain []byte
	var bodyErr error
	if h.Code == protocol.CodeSendFile {
		plain, bodyErr = s.receiveFile(r, h.UID, h.PayloadSize-uint32(fixed))
		if errors.Is(bodyErr, io.ErrUnexpectedEOF) {
			return bodyErr
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, h.Code)
	// сценарии не складываются: один запрос расходует не больше одного
	silent := s.take(s.opts.silent, h.Code)
	generic := !silent && s.take(s.opts.genericError, h.Code)
	s.mu.Unlock()

	if silent {
		s.log.Debug("ignoring request", "code", h.Code)
		return nil
	}
	if generic {
		return s.reply(w, protocol.CodeGenericError, nil)
	}

	switch h.Code {
	case protocol.CodeRegister:
		return s.register(w, protocol.TrimName(payload))
	case protocol.CodeReconnect:
		return s.reconnect(w, h.UID, protocol.TrimName(payload))
	case protocol.CodeSendKey:
		return s.sendKey(w, h.UID, payload[protocol.NameSize:])
	case protocol.CodeSendFile:
		if bodyErr != nil {
			s.log.Debug("decrypt file", "error", bodyErr)
			return s.reply(w, protocol.CodeGenericError, nil)
		}
		return s.fileReceived(w, h.UID, payload, plain)
	case protocol.CodeCRCAck:
		s.mu.Lock()
		if c, ok := s.clients[h.UID]; ok {
			c.verified = true
		}
		s.mu.Unlock()
		return s.ack(w, h.UID, h.Code)
	case protocol.CodeCRCNack:
		return nil
	case protocol.CodeCRCFail:
		return s.ack(w, h.UID, h.Code)
	default:
		return s.reply(w, protocol.CodeGenericError, nil)
	}
}

// take уменьшает счётчик сценария. Вызывается под s.mu.
func (s *Server) take(counters map[protocol.Code]int, code protocol.Code) bool {
	if counters[code] > 0 {
		counters[code]--
		return true
	}
	return false
}

func (s *Server) register(w io.Writer, name string) error {
	s.mu.Lock()
	_, taken := s.names[name]
	if s.opts.rejectRegister || taken || name == "" {
		s.mu.Unlock()
		return s.reply(w, protocol.CodeRegisterBad, nil)
	}
	var uid protocol.UID
	_, _ = rand.Read(uid[:])
	s.clients[uid] = &clientRecord{name: name}
	s.names[name] = uid
	uid = s.echoUID(protocol.CodeRegister, uid)
	s.mu.Unlock()

	return s.reply(w, protocol.CodeRegisterGood, uid[:])
}

func (s *Server) reconnect(w io.Writer, uid protocol.UID, name string) error {
	s.mu.Lock()
	c, ok := s.clients[uid]
	if s.opts.rejectReconnect || !ok || c.name != name || c.publicKey == nil {
		s.mu.Unlock()
		// заголовок без payload, но UID всё равно отправляется
		var buf []byte
		buf = s.header(protocol.CodeReconnectBad, 0).AppendBinary(buf)
		buf = append(buf, uid[:]...)
		_, err := w.Write(buf)
		return err
	}
	pub := c.publicKey
	s.mu.Unlock()

	return s.issueKey(w, protocol.CodeReconnect, protocol.CodeReconnectGood, uid, pub)
}

func (s *Server) sendKey(w io.Writer, uid protocol.UID, field []byte) error {
	s.mu.Lock()
	c, ok := s.clients[uid]
	if !ok {
		s.mu.Unlock()
		return s.reply(w, protocol.CodeGenericError, nil)
	}
	c.publicKey = bytes.Clone(field)
	s.mu.Unlock()

	return s.issueKey(w, protocol.CodeSendKey, protocol.CodeGoodKey, uid, field)
}

// issueKey создаёт новый AES ключ клиента и отправляет его
// зашифрованным публичным ключом клиента.
func (s *Server) issueKey(w io.Writer, req, code protocol.Code, uid protocol.UID, publicKey []byte) error {
	key := make([]byte, filecrypt.KeySize)
	_, _ = rand.Read(key)

	wrapped, err := identity.Wrap(publicKey, key)
	if err != nil {
		s.log.Debug("wrap key", "error", err)
		return s.reply(w, protocol.CodeGenericError, nil)
	}

	s.mu.Lock()
	s.clients[uid].aesKey = key
	echo := s.echoUID(req, uid)
	s.mu.Unlock()

	resp := protocol.KeyResponse{UID: echo, WrappedKey: wrapped}
	return s.reply(w, code, resp.AppendPayload(nil))
}

// receiveFile читает шифротекст кусками и расшифровывает его.
func (s *Server) receiveFile(r io.Reader, uid protocol.UID, size uint32) ([]byte, error) {
	s.mu.Lock()
	var key []byte
	if c, ok := s.clients[uid]; ok {
		key = c.aesKey
	}
	s.mu.Unlock()

	var plain bytes.Buffer
	var dec *filecrypt.Decrypter
	var decErr error
	if key == nil {
		decErr = errors.New("no session key")
	} else {
		dec, decErr = filecrypt.NewDecrypter(key, &plain)
	}

	chunk := make([]byte, protocol.MaxChunkSize)
	for left := int(size); left > 0; {
		n := min(left, len(chunk))
		if _, err := io.ReadFull(r, chunk[:n]); err != nil {
			return nil, fmt.Errorf("read file body: %w", io.ErrUnexpectedEOF)
		}
		left -= n
		if decErr == nil {
			_, decErr = dec.Write(chunk[:n])
		}
	}
	if decErr != nil {
		return nil, decErr
	}
	if err := dec.Close(); err != nil {
		return nil, err
	}
	return plain.Bytes(), nil
}

func (s *Server) fileReceived(w io.Writer, uid protocol.UID, payload, plain []byte) error {
	size := binary.LittleEndian.Uint32(payload)
	name := protocol.TrimName(payload[protocol.SizeSize:])

	crc := cksum.Bytes(plain)

	s.mu.Lock()
	s.files[name] = plain
	if s.opts.corruptCRC > 0 {
		s.opts.corruptCRC--
		crc = ^crc
	}
	echo := s.echoUID(protocol.CodeSendFile, uid)
	s.mu.Unlock()

	resp := protocol.CRCResponse{UID: echo, Size: size, FileName: name, Checksum: crc}
	return s.reply(w, protocol.CodeGetCRC, resp.AppendPayload(nil))
}

func (s *Server) ack(w io.Writer, uid protocol.UID, req protocol.Code) error {
	s.mu.Lock()
	echo := s.echoUID(req, uid)
	s.mu.Unlock()
	return s.reply(w, protocol.CodeAck, echo[:])
}

// echoUID возвращает UID для ответа, при необходимости подменяя его.
// Вызывается под s.mu.
func (s *Server) echoUID(req protocol.Code, uid protocol.UID) protocol.UID {
	if s.take(s.opts.wrongUID, req) {
		uid[0] ^= 0xff
	}
	return uid
}

func (s *Server) header(code protocol.Code, size uint32) protocol.ServerHeader {
	h := protocol.NewServerHeader(code, size)
	h.Version = s.opts.version
	return h
}

func (s *Server) reply(w io.Writer, code protocol.Code, payload []byte) error {
	buf := s.header(code, uint32(len(payload))).AppendBinary(nil)
	buf = append(buf, payload...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", code, err)
	}
	return nil
}
