// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// WorkersPath is the route listing the served connections.
const WorkersPath = "/workers"

// WorkersFunc returns a JSON serializable snapshot of the connections served
// by one transport.
type WorkersFunc func() any

// WorkersRouter installs GET /workers, which lists the connections of every
// named transport, and GET /workers/:transport for a single one.
func WorkersRouter(sources map[string]WorkersFunc) SetupFunc {
	return func(g *gin.Engine) error {
		g.GET(WorkersPath, func(c *gin.Context) {
			out := make(map[string]any, len(sources))
			for name, fn := range sources {
				out[name] = fn()
			}
			c.JSON(http.StatusOK, out)
		})
		g.GET(WorkersPath+"/:transport", func(c *gin.Context) {
			name := c.Param("transport")
			fn, ok := sources[name]
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{
					"error":      "unknown transport " + name,
					"transports": transportNames(sources),
				})

				return
			}
			c.JSON(http.StatusOK, fn())
		})

		return nil
	}
}

func transportNames(sources map[string]WorkersFunc) []string {
	names := maps.Keys(sources)
	slices.Sort(names)

	return names
}
