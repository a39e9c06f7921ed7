package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"vlhub/hub/internal/conn"
	"vlhub/hub/internal/directory"
)

// RunHubBot registers the hub's built-in security robot in the directory
// and greets the room, standing in for Verlihub's classic "Hub-Security"
// pseudo-user. Grounded on the teacher's RunTestBot (a virtual client
// added to shared state for the life of the process, removed on ctx
// cancellation), generalized from a tone-emitting voice participant into
// a silent NMDC pseudo-user — left with a nil Conn, same as any other
// robot (directory.User.Conn's own doc comment: "nil for robots"), so the
// broadcast engine's canSend check naturally skips ever writing to it.
func RunHubBot(ctx context.Context, hub *conn.Hub, name string, greeting string) {
	dir := hub.Directory

	bot := &directory.User{
		Nick:      name,
		Class:     directory.ClassSysop,
		IP:        net.ParseIP("127.0.0.1"),
		InList:    true,
		LoginTime: time.Now(),
	}
	if !dir.Add(bot) {
		slog.Warn("hub security robot nick already taken", "nick", name)
		return
	}
	slog.Info("hub security robot online", "nick", name)

	defer func() {
		dir.Remove(name)
		slog.Info("hub security robot offline", "nick", name)
	}()

	if greeting != "" {
		dir.SendToAll([]byte("<"+name+"> "+greeting+"|"), true)
	}

	<-ctx.Done()
}
