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

package snapshot

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/natsutil"
)

const DefaultSubject = "shepherd.snapshot"

// Sink receives each published snapshot.
type Sink interface {
	Publish(ctx context.Context, snap *models.Snapshot) error
}

// NATSConfig enables snapshot publication over NATS. Stream is optional;
// when set, publishes go through JetStream with de-duplication ids.
type NATSConfig struct {
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
	Stream  string `json:"stream" yaml:"stream"`
}

func (c *NATSConfig) Enabled() bool {
	return c != nil && c.URL != ""
}

// Publisher sends snapshots to NATS.
type Publisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
	logger  logger.Logger
}

// NewPublisher connects to NATS using cfg.
func NewPublisher(ctx context.Context, cfg *NATSConfig, log logger.Logger) (*Publisher, error) {
	nc, err := natsutil.Connect(cfg.URL, "shepherd-snapshot", log)
	if err != nil {
		return nil, err
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	p := &Publisher{nc: nc, subject: subject, logger: log}

	if cfg.Stream != "" {
		js, err := natsutil.EnsureStream(ctx, nc, cfg.Stream, []string{subject})
		if err != nil {
			nc.Close()

			return nil, err
		}

		p.js = js
	}

	return p, nil
}

// Publish sends the encoded snapshot with a unique message id.
func (p *Publisher) Publish(ctx context.Context, snap *models.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	id := uuid.NewString()

	if p.js != nil {
		if _, err := p.js.Publish(ctx, p.subject, data, jetstream.WithMsgID(id)); err != nil {
			return fmt.Errorf("publish snapshot: %w", err)
		}

		return nil
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, id)

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}

	return nil
}

func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}

	if err := p.nc.Drain(); err != nil {
		p.logger.Debug().Err(err).Msg("NATS drain failed")
		p.nc.Close()
	}
}
