// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// msgnetctl talks to a msgnetd: it sends frames, prints received messages
// and lists the connected peers.
package main

import (
	"github.com/wangtaoking1/msgnet/app"
)

func main() {
	app.NewApp("msgnetctl", "msgnet control tool",
		app.WithDescription("msgnetctl sends and receives framed messages and inspects a running msgnetd."),
		app.WithNoConfig(),
		app.WithDefaultValidArgs(),
		app.WithCommands(newSendCommand(), newListenCommand(), newWorkersCommand()),
	).Run()
}
