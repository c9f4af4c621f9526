// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// msgnetd serves length-prefixed message streams over TCP/TLS and websocket,
// optionally relaying messages through kafka.
package main

import (
	"github.com/wangtaoking1/msgnet/app"
)

const description = `msgnetd accepts framed connections, decodes every frame into a message
and dispatches it to the registered handlers. Connected peers can be listed
through the admin api.`

func main() {
	opts := NewOptions()
	app.NewApp("msgnetd", "msgnet daemon",
		app.WithOptions(opts),
		app.WithDescription(description),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	).Run()
}
