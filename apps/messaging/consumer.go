package main

import (
	"context"

	"github.com/mahaj/careerchat/pkg/bus"
	"github.com/mahaj/careerchat/pkg/notify"
	"go.uber.org/zap"
)

// Consumer is the notification intake: it takes notify requests off the
// bus, persists them through the fan-out service and republishes each
// stored notification for the gateways to deliver.
type Consumer struct {
	reader *bus.Consumer
	notify *notify.Service
	log    *zap.Logger
}

func NewConsumer(reader *bus.Consumer, svc *notify.Service, log *zap.Logger) *Consumer {
	return &Consumer{reader: reader, notify: svc, log: log}
}

func (c *Consumer) Consume(ctx context.Context) error {
	c.log.Info("starting notify consumer")
	return c.reader.Run(ctx, bus.NotifyHandler(c.notify.Notify))
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
