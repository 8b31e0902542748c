// Package testlink предоставляет тестовое окружение для интеграционных тестов канала.
//
// Пакет позволяет в одну строку поднять приёмник программно (TCP + UDP discovery
// на loopback) и, опционально, NATS контейнер через testcontainers, куда
// приёмник публикует записи доставки.
//
// Использование в тестах:
//
//	func TestIntegration(t *testing.T) {
//	    ctx := context.Background()
//
//	    env, err := testlink.Start(ctx, testlink.WithNATS())
//	    require.NoError(t, err)
//	    defer env.Close(ctx)
//
//	    sender, _ := env.NewSender(ctx)
//	    defer sender.Close()
//
//	    sender.Send(ctx, "HI")
//	    d := <-env.Deliveries()
//	}
package testlink
