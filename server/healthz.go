// Copyright 2023 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/log"
	"github.com/wangtaoking1/msgnet/utils"
)

const (
	healthzPath = "/healthz"

	healthzRetries  = 10
	healthzInterval = time.Second
)

func (s *apiServer) addHealthzRouter() {
	s.GET(healthzPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (s *apiServer) healthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthzRetries*healthzInterval)
	defer cancel()
	go func() {
		select {
		case <-s.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()

	url := fmt.Sprintf("http://%s%s", pingAddr(s.Addr()), healthzPath)
	err := utils.Retry(ctx, healthzRetries, healthzInterval, func() error {
		return ping(ctx, url)
	})
	if err != nil {
		return errors.WithMessage(err, "healthz check failed")
	}
	log.Debug("The router has been deployed successfully.")

	return nil
}

// ping requests the healthz router once.
func ping(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(utils.NotRetryErr, err.Error())
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Debugf("Waiting for the router deploy: %v", err)

		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("healthz returned %s", resp.Status)
	}

	return nil
}

// pingAddr turns an unspecified bind address into a loopback one.
func pingAddr(addr net.Addr) string {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok || !tcpAddr.IP.IsUnspecified() {
		return addr.String()
	}

	return net.JoinHostPort("127.0.0.1", fmt.Sprint(tcpAddr.Port))
}
