//go:build linux

/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package scanner

import (
	"bytes"
	"context"
	"errors"

	"github.com/carverauto/shepherd/pkg/logger"
	"golang.org/x/sys/unix"
)

const ueventBufferSize = 16 * 1024

// Hints returns a channel that receives a value shortly after a tty or usb
// device is added or removed. Sends are coalesced and never block. The
// channel carries no device data; callers rescan on receipt.
func Hints(ctx context.Context, log logger.Logger) <-chan struct{} {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		log.Warn().Err(err).Msg("uevent socket unavailable, hints disabled")

		return nil
	}

	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}); err != nil {
		_ = unix.Close(fd)

		log.Warn().Err(err).Msg("uevent bind failed, hints disabled")

		return nil
	}

	// Bound the read so the goroutine notices ctx cancellation.
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)

		log.Warn().Err(err).Msg("uevent socket timeout failed, hints disabled")

		return nil
	}

	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		defer func() { _ = unix.Close(fd) }()

		buf := make([]byte, ueventBufferSize)

		for ctx.Err() == nil {
			n, _, err := unix.Recvfrom(fd, buf, 0)
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
					continue
				}

				log.Warn().Err(err).Msg("uevent read failed, hints stopped")

				return
			}

			if !isSerialUevent(buf[:n]) {
				continue
			}

			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()

	return out
}

func isSerialUevent(msg []byte) bool {
	if !bytes.HasPrefix(msg, []byte("add@")) && !bytes.HasPrefix(msg, []byte("remove@")) {
		return false
	}

	return bytes.Contains(msg, []byte("SUBSYSTEM=tty\x00")) ||
		bytes.Contains(msg, []byte("SUBSYSTEM=usb\x00"))
}
