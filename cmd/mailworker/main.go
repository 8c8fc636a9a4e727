// Command mailworker delivers verification codes queued on Kafka by servers
// running with MAIL_TRANSPORT=kafka.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"workflow-dashboard/internal/client"
	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/mailer"
	"workflow-dashboard/internal/util"
)

func main() {
	cfg := config.LoadConfig()
	logger := util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	defer util.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer, err := client.NewKafkaConsumer(cfg.Kafka, cfg.Mail.Topic, logger.Named("kafka"))
	if err != nil {
		util.Fatal("Failed to create Kafka consumer", util.ErrorField(err))
	}
	defer consumer.Close()

	smtp, err := mailer.NewSMTPSender(cfg.Mail, logger.Named("smtp"))
	if err != nil {
		util.Fatal("Failed to create SMTP sender", util.ErrorField(err))
	}

	relay := mailer.NewRelay(consumer, mailer.WithTimeout(smtp, cfg.Mail.Timeout), logger.Named("relay"))

	util.Info("Mail worker started",
		util.String("topic", cfg.Mail.Topic),
		util.String("group_id", cfg.Kafka.GroupID))

	if err := relay.Run(ctx); err != nil {
		util.Error("Mail worker stopped", util.ErrorField(err))
		return
	}
	util.Info("Mail worker shutdown completed")
}
