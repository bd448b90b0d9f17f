// Package testzone поднимает зоны аутентификации для интеграционных тестов.
//
// Окружение состоит из NATS контейнера (testcontainers) и любого числа
// серверов зон, запущенных в процессе. Зоны, объявившие друг друга
// доверенными, проверяют пользователей друг друга через общий NATS.
//
// Использование в тестах:
//
//	func TestIntegration(t *testing.T) {
//	    ctx := context.Background()
//
//	    env, err := testzone.Start(ctx)
//	    require.NoError(t, err)
//	    defer env.Close(ctx)
//
//	    zone, err := env.StartZone(ctx, testzone.ZoneSpec{
//	        Name:     "tempZone",
//	        ServerID: "sid",
//	        Users:    []config.UserConfig{{Name: "alice", Password: "pw"}},
//	    })
//	    require.NoError(t, err)
//
//	    conn, sess, err := zone.Login(ctx, identity.User{Name: "alice", Zone: "tempZone"}, identity.User{}, "pw")
//	    require.NoError(t, err)
//	    defer conn.Close()
//	}
package testzone
