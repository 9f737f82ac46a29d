// Package backuptest предоставляет тестовое окружение для клиента резервного
// копирования.
//
// Server поднимает в процессе теста сервер с тем же протоколом, что и
// настоящий, и позволяет сценарно внедрять сбои: отказ в регистрации,
// молчание, GENERIC_ERROR, чужой UID, испорченную контрольную сумму.
//
// Start дополнительно поднимает NATS контейнер через testcontainers для
// проверки публикации отчётов.
//
// Использование в тестах:
//
//	func TestBackup(t *testing.T) {
//	    srv, err := backuptest.NewServer(backuptest.WithCorruptCRC(1))
//	    require.NoError(t, err)
//	    defer srv.Close()
//
//	    rep, err := client.Run(ctx, profile)
//	    require.NoError(t, err)
//	    require.Equal(t, 2, rep.Transmissions)
//	}
package backuptest
