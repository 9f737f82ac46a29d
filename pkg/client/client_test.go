package client_test

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/bckup/pkg/backuptest"
	"github.com/udisondev/bckup/pkg/client"
	"github.com/udisondev/bckup/pkg/cksum"
	"github.com/udisondev/bckup/pkg/identity"
	"github.com/udisondev/bckup/pkg/protocol"
)

type memProfile struct {
	addr, name, file string

	uid          protocol.UID
	keys         *identity.KeyPair
	registered   bool
	keyExchanged bool
}

func (p *memProfile) ServerAddr() string          { return p.addr }
func (p *memProfile) Name() string                { return p.name }
func (p *memProfile) FilePath() string            { return p.file }
func (p *memProfile) UID() protocol.UID           { return p.uid }
func (p *memProfile) SetUID(uid protocol.UID)     { p.uid = uid }
func (p *memProfile) Keys() *identity.KeyPair     { return p.keys }
func (p *memProfile) SetKeys(k *identity.KeyPair) { p.keys = k }
func (p *memProfile) Registered() bool            { return p.registered }
func (p *memProfile) SetRegistered(v bool)        { p.registered = v }
func (p *memProfile) KeyExchanged() bool          { return p.keyExchanged }
func (p *memProfile) SetKeyExchanged(v bool)      { p.keyExchanged = v }

// reportContent 100 байт, шифротекст 112 байт.
var reportContent = bytes.Repeat([]byte("0123456789"), 10)

type fixture struct {
	srv     *backuptest.Server
	profile *memProfile
	workDir string
}

func newFixture(t *testing.T, opts ...backuptest.Option) *fixture {
	t.Helper()
	srv, err := backuptest.NewServer(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, srv.Close()) })

	dir := t.TempDir()
	file := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(file, reportContent, 0600))

	return &fixture{
		srv:     srv,
		profile: &memProfile{addr: srv.Addr, name: "alice", file: file},
		workDir: t.TempDir(),
	}
}

func (f *fixture) run(t *testing.T, opts ...client.Option) (*client.Report, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts = append([]client.Option{
		client.WithWorkDir(f.workDir),
		client.WithPollInterval(20 * time.Millisecond),
		client.WithDialTimeout(time.Second),
	}, opts...)
	return client.Run(ctx, f.profile, opts...)
}

func requireKind(t *testing.T, err error, want client.Kind, step client.State) {
	t.Helper()
	require.Error(t, err)
	kind, ok := client.KindOf(err)
	require.True(t, ok, "error %v is not *client.Error", err)
	require.Equal(t, want, kind, "error: %v", err)

	var e *client.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, step, e.Step)
}

func TestRun_HappyPath(t *testing.T) {
	f := newFixture(t)

	rep, err := f.run(t)
	require.NoError(t, err)
	require.True(t, rep.Success())

	require.True(t, f.profile.Registered())
	require.True(t, f.profile.KeyExchanged())
	require.NotNil(t, f.profile.Keys())
	require.False(t, f.profile.UID().IsZero())

	got, ok := f.srv.File("report.txt")
	require.True(t, ok)
	require.Equal(t, reportContent, got)
	require.True(t, f.srv.Verified(f.profile.UID()))

	require.Equal(t, []protocol.Code{
		protocol.CodeRegister,
		protocol.CodeSendKey,
		protocol.CodeSendFile,
		protocol.CodeCRCAck,
	}, f.srv.Requests())

	require.Equal(t, f.profile.UID(), rep.UID)
	require.Equal(t, "report.txt", rep.FileName)
	require.EqualValues(t, 100, rep.PlainSize)
	require.EqualValues(t, 112, rep.CipherSize)
	require.Equal(t, cksum.Bytes(reportContent), rep.Checksum)
	require.Equal(t, 1, rep.Transmissions)
	require.Zero(t, rep.CRCMismatches)
	require.True(t, rep.Registered)
	require.False(t, rep.Reconnected)
	require.Equal(t, client.StateGood, rep.FinalState)
}

func TestRun_Reconnect(t *testing.T) {
	f := newFixture(t)
	keys, err := identity.Generate()
	require.NoError(t, err)
	f.profile.uid = f.srv.AddClient("alice", keys)
	f.profile.keys = keys
	f.profile.registered = true

	rep, err := f.run(t)
	require.NoError(t, err)
	require.True(t, rep.Reconnected)
	require.False(t, rep.Registered)
	require.False(t, f.profile.KeyExchanged())
	require.Same(t, keys, f.profile.Keys())

	require.Equal(t, []protocol.Code{
		protocol.CodeReconnect,
		protocol.CodeSendFile,
		protocol.CodeCRCAck,
	}, f.srv.Requests())
}

func TestRun_ReconnectRejectedRegistersOnce(t *testing.T) {
	f := newFixture(t)
	keys, err := identity.Generate()
	require.NoError(t, err)
	f.profile.uid = protocol.UID{0xaa, 0xbb}
	f.profile.keys = keys
	f.profile.registered = true

	rep, err := f.run(t)
	require.NoError(t, err)
	require.True(t, rep.Registered)
	require.False(t, rep.Reconnected)

	require.Equal(t, 1, f.srv.Count(protocol.CodeReconnect))
	require.Equal(t, 1, f.srv.Count(protocol.CodeRegister))
	require.Equal(t, protocol.CodeReconnect, f.srv.Requests()[0])
	require.NotEqual(t, protocol.UID{0xaa, 0xbb}, f.profile.UID())
	require.True(t, f.profile.KeyExchanged())
	require.Equal(t, 2, f.srv.Connections())
}

func TestRun_ReconnectRejectedAndRegisterRejected(t *testing.T) {
	f := newFixture(t, backuptest.WithReconnectReject(), backuptest.WithRegisterReject())
	keys, err := identity.Generate()
	require.NoError(t, err)
	f.profile.uid = protocol.UID{1}
	f.profile.keys = keys
	f.profile.registered = true

	_, err = f.run(t)
	requireKind(t, err, client.KindServerReject, client.StateRegister)
	require.False(t, f.profile.Registered())
	require.Equal(t, []protocol.Code{protocol.CodeReconnect, protocol.CodeRegister}, f.srv.Requests())
}

func TestRun_RegisterRejected(t *testing.T) {
	f := newFixture(t, backuptest.WithRegisterReject())

	rep, err := f.run(t)
	requireKind(t, err, client.KindServerReject, client.StateRegister)
	require.ErrorIs(t, err, client.ErrRegisterRejected)
	require.Equal(t, 1, f.srv.Count(protocol.CodeRegister))

	require.False(t, rep.Success())
	require.Equal(t, client.StateBad, rep.FinalState)
	require.Equal(t, client.StateRegister, rep.FailedStep)
	require.Equal(t, client.KindServerReject, rep.Kind)
	require.NotEmpty(t, rep.Error)
}

func TestRun_CRCMismatchRetransmits(t *testing.T) {
	f := newFixture(t, backuptest.WithCorruptCRC(2))

	rep, err := f.run(t)
	require.NoError(t, err)
	require.Equal(t, 3, rep.Transmissions)
	require.Equal(t, 2, rep.CRCMismatches)
	require.Equal(t, 3, f.srv.Count(protocol.CodeSendFile))
	require.Equal(t, 2, f.srv.Count(protocol.CodeCRCNack))
	require.Equal(t, 1, f.srv.Count(protocol.CodeCRCAck))
	// зашифрованная копия удаляется после запуска
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRun_CRCExhausted(t *testing.T) {
	f := newFixture(t, backuptest.WithCorruptCRC(4))

	rep, err := f.run(t)
	requireKind(t, err, client.KindIntegrity, client.StateSendCRC)
	require.ErrorIs(t, err, client.ErrChecksum)

	require.Equal(t, 4, f.srv.Count(protocol.CodeSendFile))
	require.Equal(t, 3, f.srv.Count(protocol.CodeCRCNack))
	require.Equal(t, 1, f.srv.Count(protocol.CodeCRCFail))
	require.Zero(t, f.srv.Count(protocol.CodeCRCAck))
	require.Equal(t, 4, rep.Transmissions)
	require.Equal(t, 4, rep.CRCMismatches)
	require.False(t, f.srv.Verified(f.profile.UID()))
}

func TestRun_TimeoutsExhausted(t *testing.T) {
	f := newFixture(t, backuptest.WithSilence(protocol.CodeSendKey, 4))

	_, err := f.run(t)
	requireKind(t, err, client.KindTimeout, client.StateSendKey)
	require.Equal(t, 1+client.MaxRetries, f.srv.Count(protocol.CodeSendKey))
	require.Zero(t, f.srv.Count(protocol.CodeSendFile))
	require.False(t, f.profile.KeyExchanged())
}

func TestRun_TimeoutThenSuccess(t *testing.T) {
	f := newFixture(t, backuptest.WithSilence(protocol.CodeRegister, 3))

	_, err := f.run(t)
	require.NoError(t, err)
	require.Equal(t, 4, f.srv.Count(protocol.CodeRegister))
	// каждая попытка регистрации открывает новое соединение
	require.Equal(t, 4, f.srv.Connections())
}

func TestRun_GenericErrorIsRetried(t *testing.T) {
	f := newFixture(t, backuptest.WithGenericError(protocol.CodeSendFile, 1))

	rep, err := f.run(t)
	require.NoError(t, err)
	require.Equal(t, 2, rep.Transmissions)
	require.Equal(t, 2, f.srv.Count(protocol.CodeSendFile))
	require.Zero(t, rep.CRCMismatches)
}

func TestRun_GenericErrorExhausted(t *testing.T) {
	f := newFixture(t, backuptest.WithGenericError(protocol.CodeSendFile, 10))

	_, err := f.run(t)
	requireKind(t, err, client.KindProtocol, client.StateSendFile)
	require.ErrorIs(t, err, protocol.ErrGenericError)
	require.Equal(t, 4, f.srv.Count(protocol.CodeSendFile))
}

func TestRun_SilenceThenGenericError(t *testing.T) {
	f := newFixture(t,
		backuptest.WithSilence(protocol.CodeRegister, 1),
		backuptest.WithGenericError(protocol.CodeRegister, 1),
	)

	_, err := f.run(t)
	require.NoError(t, err)
	// тишина, затем GENERIC_ERROR, затем успешная регистрация
	require.Equal(t, 3, f.srv.Count(protocol.CodeRegister))
}

func TestRun_OtherServerVersion(t *testing.T) {
	f := newFixture(t, backuptest.WithServerVersion(protocol.Version+1))

	rep, err := f.run(t)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Transmissions)
}

func TestRun_WrongUIDIsRetried(t *testing.T) {
	f := newFixture(t, backuptest.WithWrongUID(protocol.CodeSendKey, 1))

	_, err := f.run(t)
	require.NoError(t, err)
	require.Equal(t, 2, f.srv.Count(protocol.CodeSendKey))
}

func TestRun_Unreachable(t *testing.T) {
	lis, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	f := newFixture(t)
	f.profile.addr = addr

	rep, err := f.run(t)
	requireKind(t, err, client.KindUnreachable, client.StateRegister)
	require.Equal(t, addr, rep.ServerAddr)
	require.Empty(t, f.srv.Requests())
}

func TestRun_MissingFile(t *testing.T) {
	f := newFixture(t)
	f.profile.file = filepath.Join(t.TempDir(), "missing.txt")

	_, err := f.run(t)
	requireKind(t, err, client.KindLocalIO, client.StateSendFile)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Zero(t, f.srv.Count(protocol.CodeSendFile))
	// ключ уже получен, идентичность можно сохранить
	require.True(t, f.profile.KeyExchanged())
}

func TestRun_DirectoryIsNotAFile(t *testing.T) {
	f := newFixture(t)
	f.profile.file = t.TempDir()

	_, err := f.run(t)
	requireKind(t, err, client.KindLocalIO, client.StateSendFile)
}

func TestRun_Canceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := client.Run(ctx, f.profile, client.WithWorkDir(f.workDir))
	requireKind(t, err, client.KindCanceled, client.StateRegister)
	require.Equal(t, client.OutcomeFailure, rep.Outcome)
	require.Empty(t, f.srv.Requests())
}

func TestRun_Reporter(t *testing.T) {
	f := newFixture(t)

	var got []*client.Report
	reporter := client.ReporterFunc(func(ctx context.Context, r *client.Report) error {
		require.NoError(t, ctx.Err())
		got = append(got, r)
		return nil
	})

	rep, err := f.run(t, client.WithReporter(reporter))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Same(t, rep, got[0])
	require.Equal(t, client.OutcomeSuccess, got[0].Outcome)
	require.Positive(t, got[0].Duration)
}

func TestRun_ReporterErrorIsIgnored(t *testing.T) {
	f := newFixture(t)
	reporter := client.ReporterFunc(func(context.Context, *client.Report) error {
		return os.ErrDeadlineExceeded
	})

	_, err := f.run(t, client.WithReporter(reporter))
	require.NoError(t, err)
}

func TestRun_UploadLimit(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, client.WithUploadLimit(protocol.MaxChunkSize))
	require.NoError(t, err)
	got, ok := f.srv.File("report.txt")
	require.True(t, ok)
	require.Equal(t, reportContent, got)
}
